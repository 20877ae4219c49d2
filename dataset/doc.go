// Package dataset holds the tabular values that flow between pipeline stages.
//
// A Frame is an ordered set of named, equal-length columns. Frames are
// immutable from a stage's point of view: With and Without return new frames
// that share the unchanged columns. Image columns hold *resource.Image
// handles, which makes Frame a resource.Carrier the pipeline executor can lend,
// clone and release.
//
// A View is a lazily materialized frame. FromRecords wraps caller-owned
// records (one image and one label per row); model.Model.Transform returns a
// view that re-runs a fitted pipeline every time it is materialized.
package dataset
