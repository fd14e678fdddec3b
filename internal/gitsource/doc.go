// Package gitsource fetches a single file from a Git repository so it can be
// fed through the normal compile pipeline.
//
// Each fetch clones into a fresh temporary directory and removes it before
// returning; nothing is cached or shared between requests. Clones are shallow
// when a positive depth is configured, and a ref may name either a branch or
// a tag. Transient network failures are retried with backoff; bad URLs,
// missing refs, and missing files are not.
package gitsource
