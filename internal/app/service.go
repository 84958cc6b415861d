/**
 * @description
 * Core business logic of the round-up service. The Service owns one ResourceRouter
 * per registered resource and routes the two writes with cross-row effects
 * (transaction create, donation create) to the accrual and settlement coordinators.
 *
 * @dependencies
 * - internal/domain, internal/store: models, errors and data access.
 * - pkg/rabbitmq: domain event publishing.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
	"github.com/sadaqah/roundup-service/pkg/rabbitmq"
)

// Options tune list limits.
type Options struct {
	DefaultListLimit int
	MaxListLimit     int
}

// Service provides the round-up use cases.
type Service struct {
	repo       store.Repository
	routers    map[string]*ResourceRouter
	publisher  rabbitmq.Publisher
	logger     *slog.Logger
	newReceipt func() string
}

// NewService wires a router for every registered resource.
func NewService(repo store.Repository, publisher rabbitmq.Publisher, logger *slog.Logger, opts Options) *Service {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	routers := make(map[string]*ResourceRouter)
	for _, name := range domain.ResourceNames() {
		routers[name] = NewResourceRouter(domain.MustResource(name), repo, opts.DefaultListLimit, opts.MaxListLimit)
	}
	return &Service{
		repo:       repo,
		routers:    routers,
		publisher:  publisher,
		logger:     logger.With("component", "service"),
		newReceipt: NewReceiptNumber,
	}
}

// NewReceiptNumber returns RCP-<yyyymmdd>-<10 hex>. Uniqueness is enforced by the
// donations.receipt_number constraint; collisions are retried by the store.
func NewReceiptNumber() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("RCP-%s-%s", time.Now().UTC().Format("20060102"), token[:10])
}

// Router returns the router for a registered resource name.
func (s *Service) Router(resource string) (*ResourceRouter, error) {
	router, ok := s.routers[resource]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource %q", domain.ErrNotFound, resource)
	}
	return router, nil
}

func (s *Service) List(ctx context.Context, resource, owner string, params ListParams) ([]domain.Row, error) {
	router, err := s.Router(resource)
	if err != nil {
		return nil, err
	}
	return router.List(ctx, owner, params)
}

func (s *Service) Get(ctx context.Context, resource, owner, id string) (domain.Row, error) {
	router, err := s.Router(resource)
	if err != nil {
		return nil, err
	}
	return router.Get(ctx, owner, id)
}

// Create inserts a row. Transactions go through accrual and donations through
// settlement; every other resource is a plain insert.
func (s *Service) Create(ctx context.Context, resource, owner string, body domain.Row) (domain.Row, error) {
	switch resource {
	case domain.ResourceTransactions:
		result, err := s.RecordTransaction(ctx, owner, body)
		if err != nil {
			return nil, err
		}
		return result.Transaction, nil
	case domain.ResourceDonations:
		settlement, err := s.Donate(ctx, owner, body)
		if err != nil {
			return nil, err
		}
		return donationResponse(settlement), nil
	}
	router, err := s.Router(resource)
	if err != nil {
		return nil, err
	}
	return router.Create(ctx, owner, body)
}

func (s *Service) Update(ctx context.Context, resource, owner, id string, body domain.Row) (domain.Row, error) {
	router, err := s.Router(resource)
	if err != nil {
		return nil, err
	}
	return router.Update(ctx, owner, id, body)
}

func (s *Service) Delete(ctx context.Context, resource, owner, id string) (string, error) {
	router, err := s.Router(resource)
	if err != nil {
		return "", err
	}
	return router.Delete(ctx, owner, id)
}

// FindAutoDonateCandidates lists users whose pending balance reached their threshold.
func (s *Service) FindAutoDonateCandidates(ctx context.Context, limit int) ([]domain.AutoDonateCandidate, error) {
	return s.repo.FindAutoDonateCandidates(ctx, limit)
}

// Ping reports whether storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// donationResponse is the created donation row plus how much of the pending
// balance it cleared and what is left.
func donationResponse(settlement domain.Settlement) domain.Row {
	row := make(domain.Row, len(settlement.Donation)+2)
	for k, v := range settlement.Donation {
		row[k] = v
	}
	row["settled_amount"] = json.Number(settlement.SettledAmount.StringFixed(MinorUnitPlaces))
	row["pending_pledges"] = json.Number(settlement.PendingPledges.StringFixed(MinorUnitPlaces))
	return row
}
