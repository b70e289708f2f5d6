package assistant

import (
	"errors"
	"fmt"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// ErrProcessingFailed is the only error surfaced for provider failures. The
// provider's own message is kept in the usage log, not returned to callers.
var ErrProcessingFailed = fmt.Errorf("AI processing failed: %w", apperrors.ErrUpstream)

// ErrAIUnavailable means no AI provider is configured on this server.
var ErrAIUnavailable = fmt.Errorf("AI provider not configured: %w", apperrors.ErrUpstream)

// LockedError reports that the action's module is not unlocked for the tenant.
type LockedError struct {
	Decision licensing.Decision
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("module %s is locked: %s", e.Decision.Module, e.Decision.Reason)
}

// QuotaExhaustedError reports a fixed-billing tenant with no quota left.
type QuotaExhaustedError struct {
	Used int64
	Max  int64
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("AI quota exhausted (%d/%d)", e.Used, e.Max)
}

// Is lets callers match errors.ErrQuotaExhausted.
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == apperrors.ErrQuotaExhausted
}

// IsLocked reports whether err is a LockedError and returns its decision.
func IsLocked(err error) (licensing.Decision, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.Decision, true
	}
	return licensing.Decision{}, false
}
