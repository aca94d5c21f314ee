// Package workspace manages the directory a pipeline run owns exclusively.
//
// Each run gets a fresh directory under the base directory named after the run
// (docgate-<timestamp>-<run id prefix>). The directory is removed when the run
// ends unless the workspace is kept for inspection. A borrowed workspace wraps
// an existing working tree (local source mode) and is never removed.
package workspace
