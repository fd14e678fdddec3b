// Package texlog classifies raw TeX engine output into structured
// diagnostics plus the two control signals the pass loop runs on: does the
// document need another pass, and did the engine hit a fatal error.
//
// The classifier is pure and stateless: it sees one pass's log at a time.
// Applying the pass cap and the fatal-beats-rerun rule is the caller's job.
package texlog
