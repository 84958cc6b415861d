package store

import (
	"context"

	"github.com/sadaqah/roundup-service/internal/domain"
)

// Repository is the storage collaborator of the service. Query runs one generic
// statement built by this package; the remaining methods are multi-row units that
// must commit or roll back as a whole.
type Repository interface {
	Query(ctx context.Context, stmt Statement) ([]domain.Row, error)
	AccrueRoundUp(ctx context.Context, req domain.AccrualRequest) (domain.AccrualResult, error)
	SettleDonation(ctx context.Context, req domain.DonationRequest, newReceipt func() string) (domain.Settlement, error)
	FindAutoDonateCandidates(ctx context.Context, limit int) ([]domain.AutoDonateCandidate, error)
	Ping(ctx context.Context) error
}
