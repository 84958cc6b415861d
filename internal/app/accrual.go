package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

// RecordTransaction validates a transaction body, computes its round-up and hands the
// insert to the store, which records the transaction, its pledge and the balance
// increment atomically.
func (s *Service) RecordTransaction(ctx context.Context, owner string, body domain.Row) (domain.AccrualResult, error) {
	if owner == "" {
		return domain.AccrualResult{}, domain.ErrUnauthenticated
	}
	router, err := s.Router(domain.ResourceTransactions)
	if err != nil {
		return domain.AccrualResult{}, err
	}
	values, err := router.InsertValues(body)
	if err != nil {
		return domain.AccrualResult{}, err
	}
	delete(values, domain.OwnerColumn)

	if merchant, _ := values["merchant_name"].(string); strings.TrimSpace(merchant) == "" {
		return domain.AccrualResult{}, fmt.Errorf("%w: merchant_name is required", domain.ErrInvalidRequest)
	}
	amount, err := parseMoney(values["amount"], "amount")
	if err != nil {
		return domain.AccrualResult{}, err
	}
	if !amount.IsPositive() {
		return domain.AccrualResult{}, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidRequest)
	}

	roundUp := RoundUp(amount)
	status := domain.TransactionPending
	if roundUp.IsPositive() {
		status = domain.TransactionPledged
	}
	values["amount"] = amount.Round(MinorUnitPlaces)
	values["round_up_amount"] = roundUp
	values["status"] = status
	values["excluded"] = false

	result, err := s.repo.AccrueRoundUp(ctx, domain.AccrualRequest{
		Owner:       owner,
		Transaction: values,
		RoundUp:     roundUp,
	})
	if err != nil {
		s.logger.Error("round-up accrual failed", "owner", owner, "error", err)
		return domain.AccrualResult{}, err
	}

	if result.Pledge != nil {
		event := rabbitmq.PledgeAccruedEvent{
			Owner:          owner,
			TransactionID:  fmt.Sprint(result.Transaction["id"]),
			PledgeID:       fmt.Sprint(result.Pledge["id"]),
			Amount:         roundUp.StringFixed(MinorUnitPlaces),
			PendingPledges: result.PendingPledges.StringFixed(MinorUnitPlaces),
			Timestamp:      time.Now().UTC(),
		}
		if err := s.publisher.PublishPledgeAccrued(ctx, event); err != nil {
			s.logger.Warn("failed to publish pledge.accrued", "owner", owner, "transaction_id", event.TransactionID, "error", err)
		}
	}
	return result, nil
}

// parseMoney reads a monetary value decoded from JSON (numbers arrive as json.Number).
func parseMoney(v any, field string) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: %s is required", domain.ErrInvalidRequest, field)
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(val))
	case float64:
		d = decimal.NewFromFloat(val)
	case decimal.Decimal:
		d = val
	default:
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidRequest, field)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidRequest, field)
	}
	return d, nil
}
