// Package compiler runs the pass loop for one job: create the workspace,
// invoke the engine up to the pass cap, classify each log, and assemble the
// final outcome. The workspace is destroyed on every exit path, and the
// artifact is read before teardown, never after.
package compiler
