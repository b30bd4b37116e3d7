// Package registry provides the central "glue" for the calculator module
// system.
//
// A Registry maps the calculator type names used in graph configs (e.g.
// "PassThroughCalculator") to the compiled Go code that implements them: the
// contract function run during validation, the factory used at run time and,
// for option-bearing calculators, the schema of their options.
//
// Registries are explicit values rather than process-wide state, so several
// independent graphs with different calculator sets can coexist in one
// process. Modules add themselves with Register.
package registry
