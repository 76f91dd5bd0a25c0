// Package errors provides the classified error primitives used across assetbuilder.
//
// Every failure that reaches the CLI is either a ClassifiedError or wraps one.
// The category decides the exit code and how the failure is reported:
//
//   - CategoryConfig: duplicate/unknown task names, composition cycles, bad config files.
//     Fatal at startup.
//   - CategoryTransform: an external transform rejected its input (e.g. a style sheet
//     syntax error). Surfaced verbatim as the failing task's result.
//   - CategoryFileSystem: read, write or clean failures.
//   - CategoryNotification: live-reload delivery failures. Always recovered locally.
//
// Sentinel causes (cycle, duplicate name, ...) live with the package that detects them
// and are wrapped here, so errors.Is keeps working through the classification:
//
//	err := errors.WrapError(ErrCycle, errors.CategoryConfig, "pipeline cycle").
//		WithContext("path", "build -> assets -> build").
//		Fatal().
//		Build()
package errors
