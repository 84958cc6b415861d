package store

import (
	"errors"
	"testing"

	"github.com/sadaqah/roundup-service/internal/domain"
)

func TestResolveSort(t *testing.T) {
	allowed := []string{"created_date", "amount"}

	tests := []struct {
		name      string
		requested string
		want      SortSpec
		wantErr   bool
	}{
		{name: "empty defaults to first allowed ascending", requested: "", want: SortSpec{Field: "created_date", Direction: SortAsc}},
		{name: "plain field ascending", requested: "amount", want: SortSpec{Field: "amount", Direction: SortAsc}},
		{name: "dash prefix descending", requested: "-created_date", want: SortSpec{Field: "created_date", Direction: SortDesc}},
		{name: "unknown field", requested: "email", wantErr: true},
		{name: "case sensitive", requested: "Amount", wantErr: true},
		{name: "no partial match", requested: "created", wantErr: true},
		{name: "injection attempt", requested: "amount; DROP TABLE users", wantErr: true},
		{name: "lone dash", requested: "-", wantErr: true},
		{name: "double dash", requested: "--amount", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveSort(tc.requested, allowed)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidSort) {
					t.Fatalf("expected ErrInvalidSort, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestResolveSortEveryResource(t *testing.T) {
	for _, name := range domain.ResourceNames() {
		cfg := domain.MustResource(name)
		t.Run(name, func(t *testing.T) {
			for _, field := range cfg.AllowedSort {
				if _, err := ResolveSort(field, cfg.AllowedSort); err != nil {
					t.Fatalf("allowed field %q rejected: %v", field, err)
				}
				if _, err := ResolveSort("-"+field, cfg.AllowedSort); err != nil {
					t.Fatalf("allowed field -%q rejected: %v", field, err)
				}
			}
			if _, err := ResolveSort("not_a_column", cfg.AllowedSort); !errors.Is(err, domain.ErrInvalidSort) {
				t.Fatalf("expected ErrInvalidSort, got %v", err)
			}
		})
	}
}

func TestResolveSortEmptyAllowlist(t *testing.T) {
	if _, err := ResolveSort("", nil); !errors.Is(err, domain.ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
}
