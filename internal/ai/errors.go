package ai

import "github.com/kiranshivaraju/phrasetracker/pkg/models"

// Provider errors, re-exported so callers of this package need not import pkg/models.
var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
	ErrRateLimited         = models.ErrRateLimited
)
