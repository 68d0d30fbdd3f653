// Package share resolves public share tokens into access to a stored resource.
package share

import (
	"context"
	"time"
)

// Record grants anonymous access to one resource.
type Record struct {
	ID            string     `json:"id"`
	Token         string     `json:"token"`
	ResourceID    string     `json:"resource_id"`
	OwnerID       string     `json:"owner_id"`
	PasswordHash  string     `json:"-"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxDownloads  *int       `json:"max_downloads,omitempty"`
	DownloadCount int        `json:"download_count"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PasswordProtected reports whether resolving the record needs a password.
func (r Record) PasswordProtected() bool { return r.PasswordHash != "" }

// Expired reports whether now is past the record's expiry.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// LimitReached reports whether every allowed download has been used.
func (r Record) LimitReached() bool {
	return r.MaxDownloads != nil && r.DownloadCount >= *r.MaxDownloads
}

// Store persists share records. FindActiveByToken only returns active records.
// IncrementDownloadCount must be a single atomic compare-and-increment that refuses to
// pass MaxDownloads and counts each attemptID at most once; counted is false for a
// repeated attempt. HasAttempt reports whether attemptID was already counted for id.
type Store interface {
	FindActiveByToken(ctx context.Context, token string) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, r Record) (Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	ListByResource(ctx context.Context, resourceID string) ([]Record, error)
	SetActive(ctx context.Context, id string, active bool) (Record, error)
	Delete(ctx context.Context, id string) error
	IncrementDownloadCount(ctx context.Context, id, attemptID string) (counted bool, err error)
	HasAttempt(ctx context.Context, id, attemptID string) (bool, error)
}
