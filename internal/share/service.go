package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photocloud.io/internal/audit"
	"photocloud.io/internal/auth"
	"photocloud.io/internal/ids"
)

const tokenAttempts = 3

// CreateInput describes a new share. Zero values leave the matching restriction off.
type CreateInput struct {
	ResourceID   string
	Password     string
	ExpiresAt    *time.Time
	MaxDownloads *int
}

// Service runs owner operations on shares. Records owned by someone else behave as absent.
type Service struct {
	store    Store
	baseURL  string
	now      func() time.Time
	newToken func() (string, error)
	newID    func() string
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenSource overrides share token generation.
func WithTokenSource(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

// NewService builds an owner service. baseURL prefixes generated share links.
func NewService(store Store, baseURL string, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
		newToken: ids.NewShareToken,
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Link returns the public URL for token.
func (s *Service) Link(token string) string {
	return s.baseURL + "/share/" + token
}

// Create issues a new active share of in.ResourceID owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (Record, error) {
	ownerID = strings.TrimSpace(ownerID)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if ownerID == "" || in.ResourceID == "" {
		return Record{}, ErrInvalidInput
	}
	now := s.now().UTC()
	if in.MaxDownloads != nil && *in.MaxDownloads <= 0 {
		return Record{}, fmt.Errorf("%w: max downloads must be positive", ErrInvalidInput)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return Record{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	rec := Record{
		ResourceID:   in.ResourceID,
		OwnerID:      ownerID,
		ExpiresAt:    in.ExpiresAt,
		MaxDownloads: in.MaxDownloads,
		IsActive:     true,
		CreatedAt:    now,
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return Record{}, fmt.Errorf("share: hash password: %w", err)
		}
		rec.PasswordHash = hash
	}

	var err error
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		rec.ID = s.newID()
		rec.Token, err = s.newToken()
		if err != nil {
			return Record{}, fmt.Errorf("share: generate token: %w", err)
		}
		var created Record
		created, err = s.store.Create(ctx, rec)
		if err == nil {
			_ = audit.LogEvent(ctx, audit.EventShareCreated, map[string]any{
				"share_id":           created.ID,
				"resource_id":        created.ResourceID,
				"has_password":       created.PasswordProtected(),
				"has_expiry":         created.ExpiresAt != nil,
				"has_download_limit": created.MaxDownloads != nil,
			})
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Record{}, err
		}
	}
	return Record{}, err
}

// List returns the owner's shares.
func (s *Service) List(ctx context.Context, ownerID string) ([]Record, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByOwner(ctx, ownerID)
}

// ListForResource returns the owner's shares of one resource.
func (s *Service) ListForResource(ctx context.Context, ownerID, resourceID string) ([]Record, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(resourceID) == "" {
		return nil, ErrInvalidInput
	}
	all, err := s.store.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(all))
	for _, r := range all {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ResourceShares returns every share of a resource regardless of owner. Callers gate it
// on an elevated role.
func (s *Service) ResourceShares(ctx context.Context, resourceID string) ([]Record, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByResource(ctx, resourceID)
}

// SetActive deactivates or reactivates one of the owner's shares.
func (s *Service) SetActive(ctx context.Context, ownerID, id string, active bool) (Record, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return Record{}, err
	}
	rec, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return Record{}, err
	}
	_ = audit.LogEvent(ctx, audit.EventShareStatusChanged, map[string]any{
		"share_id":  rec.ID,
		"is_active": rec.IsActive,
	})
	return rec, nil
}

// Delete removes one of the owner's shares.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, audit.EventShareDeleted, map[string]any{
		"share_id":    rec.ID,
		"resource_id": rec.ResourceID,
	})
	return nil
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (Record, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(id) == "" {
		return Record{}, ErrInvalidInput
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.OwnerID != ownerID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
