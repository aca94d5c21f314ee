// Package linkcheck verifies that every hyperlink in the built documentation resolves.
//
// Two modes exist. Generator mode runs the documentation generator's own link
// checker and reads its machine-readable report. Native mode walks the built
// HTML, checks internal targets against the output tree and external targets
// over HTTP. Either way every broken link is classified as internal or
// external; by default both fail the step.
package linkcheck
