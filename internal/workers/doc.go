// Package workers sizes goroutine pools from the CPUs available to the
// process.
//
// Thumbnail generation is CPU-bound and uses [ForCPU]; batch persistence of
// uploads is I/O-bound and uses [ForIO]. Set PIPELINE_WORKERS to pin the
// count, for example when libvips already parallelizes internally.
package workers
