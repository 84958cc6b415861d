/**
 * @description
 * Generic list/get/create/update/delete over one registered table. The router
 * validates everything it can before touching storage: sort keys against the
 * allowlist, body keys against the writable columns, ids as UUIDs, and status changes
 * against the resource's transition table.
 */
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
)

var serverManagedColumns = map[string]bool{
	"id":           true,
	"created_date": true,
	"updated_date": true,
}

// ListParams are the client-controlled list options. Limit 0 means the default.
type ListParams struct {
	Limit  int
	SortBy string
}

// ResourceRouter binds one ResourceConfig to the storage collaborator.
type ResourceRouter struct {
	cfg          domain.ResourceConfig
	repo         store.Repository
	defaultLimit int
	maxLimit     int
}

// NewResourceRouter creates a router for cfg.
func NewResourceRouter(cfg domain.ResourceConfig, repo store.Repository, defaultLimit, maxLimit int) *ResourceRouter {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &ResourceRouter{cfg: cfg, repo: repo, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Config returns the resource configuration the router serves.
func (r *ResourceRouter) Config() domain.ResourceConfig {
	return r.cfg
}

func (r *ResourceRouter) scope(owner string) (store.Scope, error) {
	if r.cfg.UserScoped && owner == "" {
		return store.Scope{}, domain.ErrUnauthenticated
	}
	return store.Scope{Owner: owner, Enabled: r.cfg.UserScoped}, nil
}

// List returns up to limit rows ordered by the requested sort key.
func (r *ResourceRouter) List(ctx context.Context, owner string, params ListParams) ([]domain.Row, error) {
	order, err := store.ResolveSort(params.SortBy, r.cfg.AllowedSort)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", domain.ErrInvalidRequest)
	}
	limit := params.Limit
	if limit == 0 {
		limit = r.defaultLimit
	}
	if limit > r.maxLimit {
		limit = r.maxLimit
	}
	scope, err := r.scope(owner)
	if err != nil {
		return nil, err
	}
	return r.repo.Query(ctx, store.BuildList(r.cfg.Table, scope, order, limit))
}

// Get returns one row; absent and foreign rows are both ErrNotFound.
func (r *ResourceRouter) Get(ctx context.Context, owner, id string) (domain.Row, error) {
	scope, err := r.scope(owner)
	if err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	rows, err := r.repo.Query(ctx, store.BuildGet(r.cfg.Table, id, scope))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

// Create inserts a row built from the writable keys of body.
func (r *ResourceRouter) Create(ctx context.Context, owner string, body domain.Row) (domain.Row, error) {
	if r.cfg.ReadOnly {
		return nil, domain.ErrOperationNotAllowed
	}
	values, err := r.InsertValues(body)
	if err != nil {
		return nil, err
	}
	if col := r.cfg.SelfColumn; col != "" {
		if owner == "" {
			return nil, domain.ErrUnauthenticated
		}
		if v, ok := values[col]; ok && fmt.Sprint(v) != owner {
			return nil, fmt.Errorf("%w: %s can only be created for the caller", domain.ErrInvalidRequest, r.cfg.Name)
		}
		values[col] = owner
		values[domain.OwnerColumn] = owner
	}
	return r.insert(ctx, owner, values)
}

func (r *ResourceRouter) insert(ctx context.Context, owner string, values domain.Row) (domain.Row, error) {
	scope, err := r.scope(owner)
	if err != nil {
		return nil, err
	}
	stmt, err := store.BuildInsert(r.cfg.Table, values, scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.repo.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: insert returned no row", domain.ErrStorage)
	}
	return rows[0], nil
}

// Update applies the writable keys of body. When the resource has a status machine
// and the body moves the status, the change is checked against the table and applied
// as a compare-and-set on the status read beforehand.
func (r *ResourceRouter) Update(ctx context.Context, owner, id string, body domain.Row) (domain.Row, error) {
	if r.cfg.ReadOnly {
		return nil, domain.ErrOperationNotAllowed
	}
	scope, err := r.scope(owner)
	if err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	values, err := r.UpdateValues(body)
	if err != nil {
		return nil, err
	}

	guards, err := r.selfGuard(owner)
	if err != nil {
		return nil, err
	}
	if r.cfg.Statuses != nil && movesStatus(values) {
		current, err := r.Get(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		from := fmt.Sprint(current["status"])
		if err := r.resolveStatus(from, values); err != nil {
			return nil, err
		}
		guards = append(guards, store.Eq("status", from))
	}

	return r.updateWhere(ctx, id, values, scope, guards...)
}

func (r *ResourceRouter) updateWhere(ctx context.Context, id string, values domain.Row, scope store.Scope, guards ...store.Predicate) (domain.Row, error) {
	stmt, err := store.BuildUpdate(r.cfg.Table, id, values, scope, guards...)
	if err != nil {
		return nil, err
	}
	rows, err := r.repo.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if len(guards) > 0 {
			return nil, r.explainMiss(ctx, scope.Owner, id, "status changed concurrently")
		}
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

// Delete removes the row and returns its id.
func (r *ResourceRouter) Delete(ctx context.Context, owner, id string) (string, error) {
	if r.cfg.ReadOnly || r.cfg.NoDelete {
		return "", domain.ErrOperationNotAllowed
	}
	scope, err := r.scope(owner)
	if err != nil {
		return "", err
	}
	if !validID(id) {
		return "", domain.ErrNotFound
	}

	guards, err := r.selfGuard(owner)
	if err != nil {
		return "", err
	}
	if len(r.cfg.DeletableStatuses) > 0 {
		statuses := make([]any, 0, len(r.cfg.DeletableStatuses))
		for _, s := range r.cfg.DeletableStatuses {
			statuses = append(statuses, s)
		}
		guards = append(guards, store.In("status", statuses...))
	}

	rows, err := r.repo.Query(ctx, store.BuildDelete(r.cfg.Table, id, scope, guards...))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		if len(guards) > 0 {
			return "", r.explainMiss(ctx, owner, id, "cannot delete in its current status")
		}
		return "", domain.ErrNotFound
	}
	return fmt.Sprint(rows[0]["id"]), nil
}

// explainMiss tells a guarded statement that matched nothing apart: the row is
// either gone (ErrNotFound) or in a status the guard excluded (ErrInvalidTransition).
// A row that belongs to someone else is reported as ErrNotFound.
func (r *ResourceRouter) explainMiss(ctx context.Context, owner, id, reason string) error {
	row, err := r.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if col := r.cfg.SelfColumn; col != "" && fmt.Sprint(row[col]) != owner {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %s %s", domain.ErrInvalidTransition, r.cfg.Name, reason)
}

// selfGuard restricts writes on self-owned tables to the caller's own row.
func (r *ResourceRouter) selfGuard(owner string) ([]store.Predicate, error) {
	if r.cfg.SelfColumn == "" {
		return nil, nil
	}
	if owner == "" {
		return nil, domain.ErrUnauthenticated
	}
	return []store.Predicate{store.Eq(r.cfg.SelfColumn, owner)}, nil
}

// InsertValues filters a create body down to insertable columns, dropping
// server-derived keys and rejecting anything else.
func (r *ResourceRouter) InsertValues(body domain.Row) (domain.Row, error) {
	values := make(domain.Row, len(body))
	for key, v := range body {
		switch {
		case r.cfg.CanInsert(key), key == domain.OwnerColumn:
			values[key] = v
		case r.cfg.IsIgnored(key), serverManagedColumns[key]:
		default:
			return nil, fmt.Errorf("%w: field %q is not writable on %s", domain.ErrInvalidRequest, key, r.cfg.Name)
		}
	}
	return values, nil
}

// UpdateValues filters an update body down to updatable columns.
func (r *ResourceRouter) UpdateValues(body domain.Row) (domain.Row, error) {
	values := make(domain.Row, len(body))
	for key, v := range body {
		switch {
		case r.cfg.CanUpdate(key):
			values[key] = v
		case serverManagedColumns[key]:
		default:
			return nil, fmt.Errorf("%w: field %q is not writable on %s", domain.ErrInvalidRequest, key, r.cfg.Name)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidRequest)
	}
	return values, nil
}

func movesStatus(values domain.Row) bool {
	_, status := values["status"]
	_, excluded := values["excluded"]
	return status || excluded
}

// resolveStatus rewrites values so status and excluded agree with the transition
// taken from the current status.
func (r *ResourceRouter) resolveStatus(from string, values domain.Row) error {
	if raw, ok := values["excluded"]; ok {
		excluded, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("%w: excluded must be a boolean", domain.ErrInvalidRequest)
		}
		to, err := domain.ExclusionTarget(from, excluded)
		if err != nil {
			return err
		}
		values["status"] = to
		values["excluded"] = to == domain.TransactionExcluded
		return nil
	}

	to, ok := values["status"].(string)
	if !ok {
		return fmt.Errorf("%w: status must be a string", domain.ErrInvalidRequest)
	}
	return r.cfg.Statuses.Check(from, to)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
