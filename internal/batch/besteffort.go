package batch

import "imagebatch/internal/infra"

// BestEffort runs fn and logs a warning when it fails instead of propagating
// the error. Cleanup and existence checks use it so non-critical failures
// never abort a pipeline pass.
func BestEffort(logger infra.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("best-effort operation failed")
	}
}
