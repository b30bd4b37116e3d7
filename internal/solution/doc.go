// Package solution wraps a calculator graph for request/response use. A
// Solution is started once and then fed one set of input values per call,
// each at a synthetic timestamp one FrameInterval after the previous one.
package solution
