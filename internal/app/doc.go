// Package app contains the core application logic. It loads a calculator
// graph, runs it against stdin lines, prints the observed output packets,
// and serves health and metrics endpoints, decoupled from any specific
// entrypoint like a CLI.
package app
