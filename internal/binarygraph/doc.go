// Package binarygraph implements the compiled binary form of a graph config.
//
// The encoding is msgpack with sorted map keys and sorted option entries, so
// two equal configs always produce the same bytes. Option values keep their
// exact cty type: each value is stored as the JSON form of its type next to
// its cty msgpack encoding.
package binarygraph
