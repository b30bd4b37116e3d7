// Package hcl provides the HCL text format for graph configs. It parses
// graph files into the format-agnostic config.GraphConfig model.
//
// A graph file looks like:
//
//	input_stream   = ["in"]
//	output_stream  = ["out"]
//	max_queue_size = 1
//
//	node "PassThroughCalculator" {
//	  name          = "pass"
//	  input_stream  = ["in"]
//	  output_stream = ["out"]
//	}
//
// Calculator options are given either as one or more legacy `options
// "<extension>"` blocks or as a single `node_options "<type url>"` block.
package hcl
