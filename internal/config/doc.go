// Package config defines the format-agnostic graph configuration model,
// along with the Loader interface implemented by the text (HCL) and binary
// graph formats.
//
// A GraphConfig is plain data. It is canonicalized and checked by the
// validate package; after validation it is never mutated, and modifications
// such as calculator option overrides are applied to a Clone.
package config
