// Package workspace provisions isolated per-job build directories and
// guarantees their removal.
//
// Every compile job gets its own directory under a common root, named by the
// job id (e.g. job-3f1c...). The directory holds the source file, whatever
// the engine writes next to it, and the rendered artifact; destroying it is
// idempotent and is the only cleanup a job needs. A sweeper collects
// directories left behind by crashed runs.
package workspace
