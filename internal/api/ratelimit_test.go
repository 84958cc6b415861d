package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sadaqah/roundup-service/internal/domain"
)

type limiterStub struct {
	counts   map[string]int
	err      error
	subjects []string
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	l.subjects = append(l.subjects, subject)
	if l.err != nil {
		return 0, 0, l.err
	}
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[subject]++
	return l.counts[subject], 42, nil
}

func TestWriteRateLimit(t *testing.T) {
	limiter := &limiterStub{}
	svc := &serviceStub{row: domain.Row{"id": "b-1"}}
	router := NewRouter(NewHandler(svc, discardLogger()), StaticIdentity{Email: caller}, limiter, RouterOptions{WriteRateLimitPerMinute: 2})

	for i := 0; i < 5; i++ {
		if rec := do(t, router, http.MethodGet, "/api/v1/bankaccounts", ""); rec.Code != http.StatusOK {
			t.Fatalf("expected reads to pass, got %d", rec.Code)
		}
	}
	if len(limiter.subjects) != 0 {
		t.Fatalf("expected reads not to be counted, got %d", len(limiter.subjects))
	}

	for i := 0; i < 2; i++ {
		if rec := do(t, router, http.MethodPost, "/api/v1/bankaccounts", `{"bank_name":"Mock"}`); rec.Code != http.StatusCreated {
			t.Fatalf("write %d: expected 201, got %d", i+1, rec.Code)
		}
	}
	rec := do(t, router, http.MethodPost, "/api/v1/bankaccounts", `{"bank_name":"Mock"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "42" {
		t.Fatalf("expected Retry-After 42, got %q", rec.Header().Get("Retry-After"))
	}
	if limiter.subjects[0] != caller {
		t.Fatalf("expected limit keyed by caller, got %q", limiter.subjects[0])
	}
}

func TestWriteRateLimitFailsOpen(t *testing.T) {
	limiter := &limiterStub{err: errors.New("redis down")}
	svc := &serviceStub{row: domain.Row{"id": "b-1"}}
	router := NewRouter(NewHandler(svc, discardLogger()), StaticIdentity{Email: caller}, limiter, RouterOptions{WriteRateLimitPerMinute: 1})

	for i := 0; i < 3; i++ {
		if rec := do(t, router, http.MethodPost, "/api/v1/bankaccounts", `{}`); rec.Code != http.StatusCreated {
			t.Fatalf("expected limiter errors to let writes through, got %d", rec.Code)
		}
	}
}

func TestWriteRateLimitDisabled(t *testing.T) {
	limiter := &limiterStub{}
	router := NewRouter(NewHandler(&serviceStub{}, discardLogger()), StaticIdentity{Email: caller}, limiter, RouterOptions{})

	do(t, router, http.MethodDelete, "/api/v1/bankaccounts/b-1", "")
	if len(limiter.subjects) != 0 {
		t.Fatal("expected a zero limit to disable the limiter")
	}
}
