// Package engine wraps the external sequence-processing engine (usearch or
// vsearch) behind a small command contract.
//
// A Client knows which backend it talks to, renders flags in that backend's
// dialect, forwards the resolved thread count, and turns non-zero exits into
// services.ToolError values carrying the captured output. Command execution is
// abstracted by Executor so tests can substitute a scripted engine.
package engine
