// Package engine drives the external TeX binary for single compilation
// passes: working directory pinned to the job workspace, stdout and stderr
// interleaved into one log buffer, and the whole process group killed when
// the deadline expires so no child survives a timed-out pass.
package engine
