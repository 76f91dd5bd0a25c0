// Package transforms implements the built-in asset transforms.
//
// Each transform is a small options struct whose Run method has the
// task.TransformFunc signature. Options are bound when the transform is
// constructed from configuration; the runner only passes a task.Request.
//
// Outputs keep their path relative to the static prefix of the input pattern
// that matched them, so "html/**/*.html" maps html/blog/a.html to
// <out>/blog/a.html. Every output is written to a temporary file in the
// destination directory and renamed into place.
package transforms
