package share

import "errors"

// Reason is the user-facing cause of a denied resolution.
type Reason string

const (
	ReasonNotFound             Reason = "not_found"
	ReasonExpired              Reason = "expired"
	ReasonDownloadLimitReached Reason = "download_limit_reached"
	ReasonPasswordRequired     Reason = "password_required"
	ReasonPasswordIncorrect    Reason = "password_incorrect"
)

var (
	ErrNotFound             = errors.New("share: not found")
	ErrExpired              = errors.New("share: expired")
	ErrDownloadLimitReached = errors.New("share: download limit reached")
	ErrPasswordRequired     = errors.New("share: password required")
	ErrPasswordIncorrect    = errors.New("share: password incorrect")

	ErrInvalidInput = errors.New("share: invalid input")
	ErrConflict     = errors.New("share: token already exists")
	ErrAttemptID    = errors.New("share: download attempt id is required")
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrNotFound, ReasonNotFound},
	{ErrExpired, ReasonExpired},
	{ErrDownloadLimitReached, ReasonDownloadLimitReached},
	{ErrPasswordRequired, ReasonPasswordRequired},
	{ErrPasswordIncorrect, ReasonPasswordIncorrect},
}

// ReasonOf maps a denial error to its Reason. ok is false for anything else.
func ReasonOf(err error) (Reason, bool) {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason, true
		}
	}
	return "", false
}
