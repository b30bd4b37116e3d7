// Package dag provides the generic directed graph used to order calculator
// nodes. The validator adds one vertex per node and one edge per stream or
// side packet connection, rejects cycles and derives the topological order in
// which nodes are opened.
package dag
