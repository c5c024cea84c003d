// Package cmd implements the command-line interface for the rowan mutation
// engine. The binary is a development companion to the library: it exposes
// the engine's workloads and statistics without embedding it anywhere.
//
// The package is organized into several subpackages:
//
//   - bench: Workload driver benchmarking the engine in-process
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rowan -help for a list of all commands.
package cmd
