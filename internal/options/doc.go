// Package options applies calculator option overrides to a graph config.
//
// Overrides are keyed "<node-name>.<field-name>". They are applied to a copy
// of the config, and the copy is only returned when every override could be
// applied.
package options
