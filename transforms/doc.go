// Package transforms provides the estimators of an image classification
// chain. Each estimator checks the schema it is composed into, then fits to a
// pipeline.Stage over *dataset.Frame values.
//
// Stages never modify a frame in place; they return a new frame with their
// output column added. Only ExtractPixels with ReleaseSource consumes its
// input, every other stage borrows.
package transforms
