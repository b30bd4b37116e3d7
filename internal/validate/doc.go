// Package validate turns a graph config into a ValidatedGraphConfig.
//
// Validation canonicalizes the config, binds every node to its registered
// calculator, runs the calculators' contracts, checks stream wiring and
// cycles, and resolves the registered packet type of every stream and side
// packet. Nothing in a ValidatedGraphConfig changes after Initialize returns,
// so it can be shared between graph runs.
package validate
