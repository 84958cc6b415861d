package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sadaqah/roundup-service/internal/app"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
)

const caller = "user@example.com"

type serviceStub struct {
	RoundupService

	err      error
	rows     []domain.Row
	row      domain.Row
	pingErr  error
	calls    int
	resource string
	owner    string
	id       string
	params   app.ListParams
	body     domain.Row
}

func (s *serviceStub) List(ctx context.Context, resource, owner string, params app.ListParams) ([]domain.Row, error) {
	s.calls++
	s.resource, s.owner, s.params = resource, owner, params
	if s.err != nil {
		return nil, s.err
	}
	if s.rows == nil {
		return []domain.Row{}, nil
	}
	return s.rows, nil
}

func (s *serviceStub) Get(ctx context.Context, resource, owner, id string) (domain.Row, error) {
	s.calls++
	s.resource, s.owner, s.id = resource, owner, id
	return s.row, s.err
}

func (s *serviceStub) Create(ctx context.Context, resource, owner string, body domain.Row) (domain.Row, error) {
	s.calls++
	s.resource, s.owner, s.body = resource, owner, body
	return s.row, s.err
}

func (s *serviceStub) Update(ctx context.Context, resource, owner, id string, body domain.Row) (domain.Row, error) {
	s.calls++
	s.resource, s.owner, s.id, s.body = resource, owner, id, body
	return s.row, s.err
}

func (s *serviceStub) Delete(ctx context.Context, resource, owner, id string) (string, error) {
	s.calls++
	s.resource, s.owner, s.id = resource, owner, id
	if s.err != nil {
		return "", s.err
	}
	return id, nil
}

func (s *serviceStub) CurrentUser(ctx context.Context, owner string) (domain.Row, error) {
	s.calls++
	s.owner = owner
	return s.row, s.err
}

func (s *serviceStub) UpdateMyData(ctx context.Context, owner, id string, body domain.Row) (domain.Row, error) {
	s.calls++
	s.owner, s.id, s.body = owner, id, body
	return s.row, s.err
}

func (s *serviceStub) Ping(ctx context.Context) error {
	return s.pingErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(svc RoundupService) http.Handler {
	return NewRouter(NewHandler(svc, discardLogger()), StaticIdentity{Email: caller}, nil, RouterOptions{})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
	return payload["error"]
}

func TestListPassesQueryAndCaller(t *testing.T) {
	svc := &serviceStub{rows: []domain.Row{{"id": "t-1"}}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/v1/transactions?limit=5&sortBy=-amount", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.resource != domain.ResourceTransactions || svc.owner != caller {
		t.Fatalf("expected transactions for %s, got %s for %s", caller, svc.resource, svc.owner)
	}
	if svc.params.Limit != 5 || svc.params.SortBy != "-amount" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil || len(rows) != 1 {
		t.Fatalf("expected one row, got %q (%v)", rec.Body.String(), err)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	rec := do(t, newTestRouter(&serviceStub{}), http.MethodGet, "/api/v1/charities", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected [], got %q", rec.Body.String())
	}
}

func TestListRejectsBadLimit(t *testing.T) {
	for _, raw := range []string{"-1", "ten"} {
		svc := &serviceStub{}
		rec := do(t, newTestRouter(svc), http.MethodGet, "/api/v1/donations?limit="+raw, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", raw, rec.Code)
		}
		if svc.calls != 0 {
			t.Fatalf("limit=%s: expected no service call", raw)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "invalid sort", err: domain.ErrInvalidSort, wantStatus: http.StatusBadRequest, wantMsg: "invalid sortBy"},
		{name: "not found", err: fmt.Errorf("charity x: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound, wantMsg: "not found"},
		{name: "validation", err: fmt.Errorf("%w: merchant_name is required", domain.ErrInvalidRequest), wantStatus: http.StatusBadRequest, wantMsg: "invalid request: merchant_name is required"},
		{name: "transition", err: fmt.Errorf("%w: transactions status changed", domain.ErrInvalidTransition), wantStatus: http.StatusBadRequest, wantMsg: "invalid status transition: transactions status changed"},
		{name: "nothing to donate", err: domain.ErrNothingToDonate, wantStatus: http.StatusBadRequest, wantMsg: domain.ErrNothingToDonate.Error()},
		{name: "not allowed", err: domain.ErrOperationNotAllowed, wantStatus: http.StatusMethodNotAllowed, wantMsg: "operation not allowed"},
		{name: "conflict", err: &store.Error{Kind: domain.ErrConflict, Op: "insert", Err: errors.New("duplicate key users_email_key")}, wantStatus: http.StatusConflict, wantMsg: domain.ErrConflict.Error()},
		{name: "db constraint", err: &store.Error{Kind: domain.ErrInvalidRequest, Op: "insert", Err: errors.New("violates check constraint transactions_amount_check")}, wantStatus: http.StatusBadRequest, wantMsg: "invalid request"},
		{name: "timeout", err: &store.Error{Kind: domain.ErrStorageTimeout, Op: "list", Err: errors.New("context deadline exceeded")}, wantStatus: http.StatusServiceUnavailable, wantMsg: "service temporarily unavailable"},
		{name: "storage", err: &store.Error{Kind: domain.ErrStorage, Op: "list", Err: errors.New("relation secret_table does not exist")}, wantStatus: http.StatusInternalServerError, wantMsg: "internal error"},
		{name: "unknown", err: errors.New("boom at 10.0.0.5"), wantStatus: http.StatusInternalServerError, wantMsg: "internal error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&serviceStub{err: tc.err}), http.MethodGet, "/api/v1/transactions", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if got := errorBody(t, rec); got != tc.wantMsg {
				t.Fatalf("expected message %q, got %q", tc.wantMsg, got)
			}
			if tc.wantStatus == http.StatusServiceUnavailable && rec.Header().Get("Retry-After") == "" {
				t.Fatal("expected Retry-After on 503")
			}
		})
	}
}

func TestCreateKeepsNumbersExact(t *testing.T) {
	svc := &serviceStub{row: domain.Row{"id": "t-1", "round_up_amount": json.Number("0.65")}}
	rec := do(t, newTestRouter(svc), http.MethodPost, "/api/v1/transactions", `{"merchant_name":"Cafe","amount":4.35}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got, ok := svc.body["amount"].(json.Number); !ok || got.String() != "4.35" {
		t.Fatalf("expected json.Number 4.35, got %#v", svc.body["amount"])
	}
	if !strings.Contains(rec.Body.String(), `"round_up_amount":0.65`) {
		t.Fatalf("expected numeric round_up_amount, got %s", rec.Body.String())
	}
}

func TestCreateRejectsNonObjectBody(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"text"`, `{"amount":`} {
		svc := &serviceStub{}
		rec := do(t, newTestRouter(svc), http.MethodPost, "/api/v1/bankaccounts", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if svc.calls != 0 {
			t.Fatalf("%s: expected no service call", body)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc := &serviceStub{row: domain.Row{"id": "abc", "status": "excluded"}}
	router := newTestRouter(svc)

	rec := do(t, router, http.MethodPatch, "/api/v1/transactions/abc", `{"excluded":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.id != "abc" || svc.body["excluded"] != true {
		t.Fatalf("unexpected update call id=%q body=%v", svc.id, svc.body)
	}

	rec = do(t, router, http.MethodDelete, "/api/v1/transactions/abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["id"] != "abc" || payload["success"] != true {
		t.Fatalf("unexpected delete body %v", payload)
	}
}

func TestUserEndpoints(t *testing.T) {
	svc := &serviceStub{row: domain.Row{}}
	router := newTestRouter(svc)

	rec := do(t, router, http.MethodGet, "/api/v1/users/me", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected empty object, got %d %q", rec.Code, rec.Body.String())
	}
	if svc.owner != caller {
		t.Fatalf("expected caller %s, got %s", caller, svc.owner)
	}

	rec = do(t, router, http.MethodPatch, "/api/v1/users/u-1/my-data", `{"notification_preferences":{"email":false}}`)
	if rec.Code != http.StatusOK || svc.id != "u-1" {
		t.Fatalf("expected my-data update for u-1, got %d id=%q", rec.Code, svc.id)
	}

	rec = do(t, router, http.MethodPost, "/api/v1/users/login", "")
	var login map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &login)
	if login["token"] != "mock-token" || login["email"] != caller {
		t.Fatalf("unexpected login body %v", login)
	}

	rec = do(t, router, http.MethodPost, "/api/v1/users/logout", "")
	if strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected logout body %q", rec.Body.String())
	}
}

func TestIdentityRequired(t *testing.T) {
	svc := &serviceStub{}
	router := NewRouter(NewHandler(svc, discardLogger()), StaticIdentity{}, nil, RouterOptions{})

	rec := do(t, router, http.MethodGet, "/api/v1/transactions", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("expected no service call without identity")
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	rec := do(t, router, http.MethodGet, "/api/v1/wallets", "")
	if rec.Code != http.StatusNotFound || errorBody(t, rec) != "not found" {
		t.Fatalf("expected JSON 404, got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPut, "/api/v1/transactions/abc", `{}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(&serviceStub{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, newTestRouter(&serviceStub{pingErr: errors.New("down")}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
