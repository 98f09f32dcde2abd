// Package errors provides structured error types for the lensfun runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Native status codes are carried in Code and always rendered in
// the message, so they are never lost when an error is logged or wrapped.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseNative, errors.KindNativeComputation).
//		Symbol("lfw_build_tca_map").
//		Code(-2).
//		Detail("output buffer too small").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidArgument("width", "must be a positive integer")
//	err := errors.NativeComputation("lfw_build_geometry_map", -4)
//
// Every message starts with "lensfun: ". The Err* sentinels match any error
// of the same kind:
//
//	if errors.Is(err, lferrors.ErrDisposed) { ... }
package errors
