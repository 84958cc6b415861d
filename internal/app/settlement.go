package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/pkg/rabbitmq"
)

// Donate parses a donation body and settles it. Omitting amount donates the full
// pending balance.
func (s *Service) Donate(ctx context.Context, owner string, body domain.Row) (domain.Settlement, error) {
	if owner == "" {
		return domain.Settlement{}, domain.ErrUnauthenticated
	}
	router, err := s.Router(domain.ResourceDonations)
	if err != nil {
		return domain.Settlement{}, err
	}
	values, err := router.InsertValues(body)
	if err != nil {
		return domain.Settlement{}, err
	}

	req := domain.DonationRequest{Owner: owner}
	req.CharityID, _ = values["charity_id"].(string)
	if strings.TrimSpace(req.CharityID) == "" {
		return domain.Settlement{}, fmt.Errorf("%w: charity_id is required", domain.ErrInvalidRequest)
	}
	if _, err := uuid.Parse(req.CharityID); err != nil {
		return domain.Settlement{}, fmt.Errorf("charity %s: %w", req.CharityID, domain.ErrNotFound)
	}

	if raw, ok := values["amount"]; ok && raw != nil {
		amount, err := parseMoney(raw, "amount")
		if err != nil {
			return domain.Settlement{}, err
		}
		amount = amount.Round(MinorUnitPlaces)
		if !amount.IsPositive() {
			return domain.Settlement{}, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidRequest)
		}
		req.Amount = &amount
	}

	if raw, ok := values["donation_type"]; ok && raw != nil {
		donationType, isString := raw.(string)
		if !isString || !domain.ValidDonationType(donationType) {
			return domain.Settlement{}, fmt.Errorf("%w: donation_type must be sadaqah or zakat", domain.ErrInvalidRequest)
		}
		req.DonationType = donationType
	}
	if raw, ok := values["payment_method"]; ok && raw != nil {
		method, isString := raw.(string)
		if !isString {
			return domain.Settlement{}, fmt.Errorf("%w: payment_method must be a string", domain.ErrInvalidRequest)
		}
		req.PaymentMethod = strings.TrimSpace(method)
	}

	return s.SettleDonation(ctx, req)
}

// SettleDonation records a completed donation against the owner's pending pledges and
// publishes donation.completed.
func (s *Service) SettleDonation(ctx context.Context, req domain.DonationRequest) (domain.Settlement, error) {
	settlement, err := s.repo.SettleDonation(ctx, req, s.newReceipt)
	if err != nil {
		if !errors.Is(err, domain.ErrNothingToDonate) {
			s.logger.Error("donation settlement failed", "owner", req.Owner, "charity_id", req.CharityID, "error", err)
		}
		return domain.Settlement{}, err
	}

	event := rabbitmq.DonationCompletedEvent{
		Owner:          req.Owner,
		DonationID:     fmt.Sprint(settlement.Donation["id"]),
		CharityID:      req.CharityID,
		Amount:         fmt.Sprint(settlement.Donation["amount"]),
		DonationType:   fmt.Sprint(settlement.Donation["donation_type"]),
		ReceiptNumber:  fmt.Sprint(settlement.Donation["receipt_number"]),
		SettledPledges: settlement.SettledPledges,
		SettledAmount:  settlement.SettledAmount.StringFixed(MinorUnitPlaces),
		PendingPledges: settlement.PendingPledges.StringFixed(MinorUnitPlaces),
		TotalDonated:   settlement.TotalDonated.StringFixed(MinorUnitPlaces),
		Timestamp:      time.Now().UTC(),
	}
	if err := s.publisher.PublishDonationCompleted(ctx, event); err != nil {
		s.logger.Warn("failed to publish donation.completed", "owner", req.Owner, "donation_id", event.DonationID, "error", err)
	}
	s.logger.Info("donation settled", "owner", req.Owner, "donation_id", event.DonationID, "amount", event.Amount, "settled_pledges", len(settlement.SettledPledges))
	return settlement, nil
}
