// Package errors provides classified error primitives used across docgate.
//
// Every pipeline step failure is a ClassifiedError whose category names the
// failing step (checkout, provision, build, linkcheck). The CLI adapter maps
// categories to process exit codes and the HTTP adapter maps them to status
// codes for the daemon's admin and webhook endpoints.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryCheckout, "clone failed").
//		Fatal().
//		WithContext("url", repoURL).
//		Build()
package errors
