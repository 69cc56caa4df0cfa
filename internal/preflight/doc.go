// Package preflight provides readiness checks for the engine binaries and
// the filesystem paths a run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before invoking the pipeline so a missing
//     engine or unwritable directory fails before any work is staged.
//   - The CLI "deps" command reports the same checks for inspection.
package preflight
