// Package logs reads the ampliconflow log file for the `logs` command.
//
// Tail returns the last N lines (optionally restricted to one run) together
// with the byte offset reached, and Follow polls from that offset until the
// context ends. Memory stays bounded by the requested line count.
package logs
