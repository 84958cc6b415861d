/**
 * @description
 * Scheduled job implementations. The auto-donate job settles the full pending balance
 * of users who opted in and whose balance has reached their threshold.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sadaqah/roundup-service/internal/domain"
)

// AutoDonateStore lists users due for an automatic donation.
type AutoDonateStore interface {
	FindAutoDonateCandidates(ctx context.Context, limit int) ([]domain.AutoDonateCandidate, error)
}

// Settler settles a donation.
type Settler interface {
	SettleDonation(ctx context.Context, req domain.DonationRequest) (domain.Settlement, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	store     AutoDonateStore
	settler   Settler
	logger    *slog.Logger
	batchSize int
	timeout   time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(store AutoDonateStore, settler Settler, logger *slog.Logger, batchSize int) *Jobs {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Jobs{
		store:     store,
		settler:   settler,
		logger:    logger,
		batchSize: batchSize,
		timeout:   time.Minute,
	}
}

// ProcessAutoDonations settles one batch of due users. Failures are logged per user
// and do not stop the batch.
func (j *Jobs) ProcessAutoDonations() {
	j.logger.Info("starting auto-donate job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	candidates, err := j.store.FindAutoDonateCandidates(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("failed to list auto-donate candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		j.logger.Info("no users due for auto-donation")
		return
	}

	j.logger.Info("found users due for auto-donation", "count", len(candidates))

	settled := 0
	for _, c := range candidates {
		settlement, err := j.settler.SettleDonation(ctx, domain.DonationRequest{
			Owner:         c.Email,
			CharityID:     c.PreferredCharity,
			PaymentMethod: domain.AutoPaymentMethod,
		})
		if err != nil {
			if errors.Is(err, domain.ErrNothingToDonate) {
				j.logger.Info("balance already settled", "owner", c.Email)
				continue
			}
			j.logger.Error("auto-donation failed", "owner", c.Email, "charity_id", c.PreferredCharity, "error", err)
			continue
		}
		settled++
		j.logger.Info("auto-donation completed", "owner", c.Email, "donation_id", settlement.Donation["id"])
	}

	j.logger.Info("auto-donate job finished", "settled", settled, "candidates", len(candidates))
}
