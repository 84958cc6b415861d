package app

import (
	"context"
	"fmt"

	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
)

// CurrentUser returns the caller's users row, or an empty row when none exists yet.
func (s *Service) CurrentUser(ctx context.Context, owner string) (domain.Row, error) {
	if owner == "" {
		return nil, domain.ErrUnauthenticated
	}
	rows, err := s.repo.Query(ctx, store.BuildFind("users", 1, store.Eq("email", owner)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return domain.Row{}, nil
	}
	return rows[0], nil
}

// UpdateMyData replaces notification_preferences on the caller's own users row. A
// missing or null value leaves the row unchanged. Rows belonging to someone else
// are reported as not found.
func (s *Service) UpdateMyData(ctx context.Context, owner, id string, body domain.Row) (domain.Row, error) {
	if owner == "" {
		return nil, domain.ErrUnauthenticated
	}
	for key := range body {
		if key != "notification_preferences" {
			return nil, fmt.Errorf("%w: only notification_preferences can be updated here", domain.ErrInvalidRequest)
		}
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}

	router, err := s.Router(domain.ResourceUsers)
	if err != nil {
		return nil, err
	}
	ownRow := store.Eq("email", owner)

	prefs, ok := body["notification_preferences"]
	if !ok || prefs == nil {
		rows, err := s.repo.Query(ctx, store.BuildFind("users", 1, store.Eq("id", id), ownRow))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, domain.ErrNotFound
		}
		return rows[0], nil
	}
	switch prefs.(type) {
	case map[string]any:
	default:
		return nil, fmt.Errorf("%w: notification_preferences must be an object", domain.ErrInvalidRequest)
	}

	stmt, err := store.BuildUpdate(router.Config().Table, id, domain.Row{"notification_preferences": prefs}, store.Scope{}, ownRow)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}
