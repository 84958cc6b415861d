package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/sadaqah/roundup-service/internal/store"
	"github.com/sadaqah/roundup-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingRepo records every generic statement and answers from a queue of results.
type recordingRepo struct {
	store.Repository

	mu         sync.Mutex
	statements []store.Statement
	results    [][]domain.Row
	err        error
}

func (r *recordingRepo) Query(ctx context.Context, stmt store.Statement) ([]domain.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, stmt)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) == 0 {
		return []domain.Row{}, nil
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next, nil
}

func (r *recordingRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statements)
}

type publisherStub struct {
	mu        sync.Mutex
	accrued   []rabbitmq.PledgeAccruedEvent
	completed []rabbitmq.DonationCompletedEvent
	err       error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return p.err
}

func (p *publisherStub) PublishPledgeAccrued(ctx context.Context, event rabbitmq.PledgeAccruedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accrued = append(p.accrued, event)
	return p.err
}

func (p *publisherStub) PublishDonationCompleted(ctx context.Context, event rabbitmq.DonationCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return p.err
}

func (p *publisherStub) Close() {}

type memPledge struct {
	id     string
	txID   string
	amount decimal.Decimal
	status string
}

// memLedger is an in-memory stand-in for the accrual and settlement transactions.
// A single mutex plays the part of the users row lock.
type memLedger struct {
	store.Repository

	mu           sync.Mutex
	pending      map[string]decimal.Decimal
	donated      map[string]decimal.Decimal
	pledges      map[string][]*memPledge
	transactions map[string]domain.Row
	charities    map[string]domain.Charity
	lastAccrual  domain.AccrualRequest
	lastDonation domain.DonationRequest
}

func newMemLedger() *memLedger {
	return &memLedger{
		pending:      map[string]decimal.Decimal{},
		donated:      map[string]decimal.Decimal{},
		pledges:      map[string][]*memPledge{},
		transactions: map[string]domain.Row{},
		charities:    map[string]domain.Charity{},
	}
}

func (m *memLedger) addCharity(zakat bool) string {
	id := uuid.NewString()
	m.charities[id] = domain.Charity{ID: id, Name: "Relief " + id[:4], ZakatEligible: zakat}
	return id
}

func (m *memLedger) AccrueRoundUp(ctx context.Context, req domain.AccrualRequest) (domain.AccrualResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAccrual = req

	txID := uuid.NewString()
	row := domain.Row{"id": txID, "created_by": req.Owner}
	for k, v := range req.Transaction {
		row[k] = v
	}
	m.transactions[txID] = row
	result := domain.AccrualResult{Transaction: row, PendingPledges: m.pending[req.Owner]}

	if req.RoundUp.IsPositive() {
		p := &memPledge{id: uuid.NewString(), txID: txID, amount: req.RoundUp, status: domain.PledgePending}
		m.pledges[req.Owner] = append(m.pledges[req.Owner], p)
		m.pending[req.Owner] = m.pending[req.Owner].Add(req.RoundUp)
		result.Pledge = domain.Row{"id": p.id, "transaction_id": txID, "amount": p.amount, "status": p.status}
		result.PendingPledges = m.pending[req.Owner]
	}
	return result, nil
}

func (m *memLedger) SettleDonation(ctx context.Context, req domain.DonationRequest, newReceipt func() string) (domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDonation = req

	charity, ok := m.charities[req.CharityID]
	if !ok {
		return domain.Settlement{}, fmt.Errorf("charity %s: %w", req.CharityID, domain.ErrNotFound)
	}
	amount := m.pending[req.Owner]
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return domain.Settlement{}, domain.ErrNothingToDonate
	}
	donationType := req.DonationType
	if donationType == "" {
		donationType = domain.DonationTypeSadaqah
	}
	if donationType == domain.DonationTypeZakat && !charity.ZakatEligible {
		return domain.Settlement{}, domain.ErrCharityNotZakatReady
	}

	settlement := domain.Settlement{Donation: domain.Row{
		"id":             uuid.NewString(),
		"amount":         amount.StringFixed(2),
		"charity_id":     charity.ID,
		"charity_name":   charity.Name,
		"donation_type":  donationType,
		"status":         domain.DonationCompleted,
		"receipt_number": newReceipt(),
	}}
	settledSum := decimal.Zero
	remaining := decimal.Zero
	open := true
	for _, p := range m.pledges[req.Owner] {
		if p.status != domain.PledgePending {
			continue
		}
		if open && settledSum.Add(p.amount).LessThanOrEqual(amount) {
			settledSum = settledSum.Add(p.amount)
			p.status = domain.PledgeDonated
			m.transactions[p.txID]["status"] = domain.TransactionDonated
			settlement.SettledPledges = append(settlement.SettledPledges, p.id)
			continue
		}
		open = false
		remaining = remaining.Add(p.amount)
	}
	m.pending[req.Owner] = remaining
	m.donated[req.Owner] = m.donated[req.Owner].Add(amount)
	settlement.SettledAmount = settledSum
	settlement.PendingPledges = remaining
	settlement.TotalDonated = m.donated[req.Owner]
	return settlement, nil
}

func (m *memLedger) pendingSum(owner string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, p := range m.pledges[owner] {
		if p.status == domain.PledgePending {
			sum = sum.Add(p.amount)
		}
	}
	return sum
}

func (m *memLedger) balance(owner string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[owner]
}
