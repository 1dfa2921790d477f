package handlers

import (
	"net/http"

	"sim.studio/executor/internal/engine/errs"
)

// statusForKind maps an errs.Kind to an HTTP status code, per spec §6:
// "400 for ValidationFailed/MissingEnvVar, 404 for unknown workflow, 409
// for concurrent-modification collisions, 429 for RateLimited, 499 for
// Cancelled, 500 for everything else."
//
// "unknown workflow" is not an engine error kind (the engine never loads
// workflows itself), so the handler maps postgres.ErrNotFound to 404
// directly. Nothing in this service detects concurrent-modification
// collisions, so no response carries 409. This function covers the rest
// of the taxonomy.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.ValidationFailed, errs.MissingEnvVar:
		return http.StatusBadRequest
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
