package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photocloud.io/internal/audit"
	"photocloud.io/internal/auth"
	"photocloud.io/internal/ids"
	"photocloud.io/internal/obs"
)

// Validator resolves share tokens for anonymous visitors. It holds no per-call state.
type Validator struct {
	store Store
	now   func() time.Time
}

// ValidatorOption configures Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock overrides the time source used for expiry checks.
func WithValidatorClock(fn func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if fn != nil {
			v.now = fn
		}
	}
}

func NewValidator(store Store, opts ...ValidatorOption) *Validator {
	v := &Validator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Resolve checks, in order, existence (active only), expiry, download limit and password.
// Denials are reported with the package sentinels; any other error is a storage failure.
func (v *Validator) Resolve(ctx context.Context, token string, password *string) (Record, error) {
	rec, err := v.resolve(ctx, token, password)
	observeResolution(err)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func observeResolution(err error) {
	if err == nil {
		obs.ObserveShareResolution("granted")
		return
	}
	if reason, ok := ReasonOf(err); ok {
		obs.ObserveShareResolution(string(reason))
		return
	}
	obs.ObserveShareResolution("error")
}

// resolve also returns the stored record alongside expiry, limit and password denials.
func (v *Validator) resolve(ctx context.Context, token string, password *string) (Record, error) {
	if !ids.IsShareToken(token) {
		return Record{}, ErrNotFound
	}
	rec, err := v.store.FindActiveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("share: find by token: %w", err)
	}
	if !rec.IsActive {
		return Record{}, ErrNotFound
	}
	if rec.Expired(v.now()) {
		return rec, ErrExpired
	}
	if rec.LimitReached() {
		return rec, ErrDownloadLimitReached
	}
	if err := checkPassword(rec, password); err != nil {
		return rec, err
	}
	return rec, nil
}

func checkPassword(rec Record, password *string) error {
	if !rec.PasswordProtected() {
		return nil
	}
	if password == nil || *password == "" {
		return ErrPasswordRequired
	}
	if err := auth.VerifyPassword(rec.PasswordHash, *password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMatch) {
			obs.LogEvent("error", "share password hash unusable", map[string]any{
				"share_id": rec.ID,
				"error":    err.Error(),
			})
		}
		return ErrPasswordIncorrect
	}
	return nil
}

// Download is the outcome of RecordDownload.
type Download struct {
	Record Record
	// Counted is false when the attempt had already been counted or accounting was skipped.
	Counted bool
	// Skipped is true when the counter could not be updated; the download still proceeds.
	Skipped bool
}

// RecordDownload resolves the token again and counts one download for attemptID.
// Storage failures while counting are logged and tolerated; losing the race for the last
// allowed download is reported as ErrDownloadLimitReached. Repeating an attempt that was
// already counted succeeds with Counted false, even once the limit is used up.
func (v *Validator) RecordDownload(ctx context.Context, token string, password *string, attemptID string) (Download, error) {
	if attemptID == "" {
		return Download{}, ErrAttemptID
	}
	rec, err := v.resolve(ctx, token, password)
	if errors.Is(err, ErrDownloadLimitReached) && v.alreadyCounted(ctx, rec, password, attemptID) {
		// the retry of the download that used up the limit
		obs.ObserveShareResolution("granted")
		obs.ObserveShareDownload("duplicate")
		return Download{Record: rec}, nil
	}
	observeResolution(err)
	if err != nil {
		return Download{}, err
	}
	counted, err := v.store.IncrementDownloadCount(ctx, rec.ID, attemptID)
	switch {
	case err == nil:
	case errors.Is(err, ErrDownloadLimitReached), errors.Is(err, ErrNotFound):
		obs.ObserveShareDownload("denied")
		return Download{}, err
	default:
		obs.ObserveShareDownload("skipped")
		obs.LogEvent("warn", "download count not recorded", map[string]any{
			"share_id":   rec.ID,
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
		return Download{Record: rec, Skipped: true}, nil
	}
	if !counted {
		obs.ObserveShareDownload("duplicate")
		return Download{Record: rec}, nil
	}
	obs.ObserveShareDownload("counted")
	rec.DownloadCount++
	_ = audit.LogEvent(ctx, audit.EventShareDownload, map[string]any{
		"share_id":       rec.ID,
		"resource_id":    rec.ResourceID,
		"download_count": rec.DownloadCount,
	})
	return Download{Record: rec, Counted: true}, nil
}

// alreadyCounted reports whether attemptID was counted for rec. The password still has to
// match so a replayed attempt id cannot stand in for it.
func (v *Validator) alreadyCounted(ctx context.Context, rec Record, password *string, attemptID string) bool {
	if checkPassword(rec, password) != nil {
		return false
	}
	seen, err := v.store.HasAttempt(ctx, rec.ID, attemptID)
	if err != nil {
		obs.LogEvent("warn", "download attempt lookup failed", map[string]any{
			"share_id":   rec.ID,
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
		return false
	}
	return seen
}
