/**
 * @description
 * PostgreSQL implementation of the Repository. Generic resource statements run on the
 * pool directly; accrual and settlement run in one transaction each with the user row
 * locked FOR UPDATE, so concurrent requests for the same user serialize on that lock.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: pool, transactions, row decoding.
 * - github.com/shopspring/decimal: money arithmetic.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sadaqah/roundup-service/internal/domain"
	"github.com/shopspring/decimal"
)

const receiptAttempts = 3

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db      DB
	timeout time.Duration
}

// NewPostgresRepository bounds every call with timeout (5s when zero).
func NewPostgresRepository(db DB, timeout time.Duration) *PostgresRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresRepository{db: db, timeout: timeout}
}

func (r *PostgresRepository) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Ping checks that the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return classify("ping", r.db.Ping(ctx))
}

// Query runs one generic statement and returns its rows.
func (r *PostgresRepository) Query(ctx context.Context, stmt Statement) ([]domain.Row, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, stmt.SQL, normalizeArgs(stmt.Args)...)
	if err != nil {
		return nil, classify("query", err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, classify("query", err)
	}
	return out, nil
}

// AccrueRoundUp inserts a transaction and, when the round-up is positive, its pledge
// and the matching pending_pledges increment, all in one transaction.
func (r *PostgresRepository) AccrueRoundUp(ctx context.Context, req domain.AccrualRequest) (domain.AccrualResult, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	result, err := r.accrue(ctx, req)
	return result, classify("accrue round-up", err)
}

func (r *PostgresRepository) accrue(ctx context.Context, req domain.AccrualRequest) (domain.AccrualResult, error) {
	var result domain.AccrualResult

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer tx.Rollback(ctx)

	user, err := lockUser(ctx, tx, req.Owner)
	if err != nil {
		return result, err
	}
	result.PendingPledges = user.PendingPledges

	scope := Scope{Owner: req.Owner, Enabled: true}
	txStmt, err := BuildInsert("transactions", req.Transaction, scope)
	if err != nil {
		return result, err
	}
	inserted, err := queryOne(ctx, tx, txStmt)
	if err != nil {
		return result, err
	}
	result.Transaction = inserted

	if req.RoundUp.IsPositive() {
		pledgeStmt, err := BuildInsert("pledges", domain.Row{
			"transaction_id": inserted["id"],
			"amount":         req.RoundUp,
			"status":         domain.PledgePending,
		}, scope)
		if err != nil {
			return result, err
		}
		if result.Pledge, err = queryOne(ctx, tx, pledgeStmt); err != nil {
			return result, err
		}

		err = tx.QueryRow(ctx,
			`UPDATE users SET pending_pledges = pending_pledges + $1, updated_date = NOW() WHERE email = $2 RETURNING pending_pledges`,
			req.RoundUp, req.Owner,
		).Scan(&result.PendingPledges)
		if err != nil {
			return result, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// SettleDonation records a completed donation and settles the user's pending pledges
// oldest-first up to its amount.
func (r *PostgresRepository) SettleDonation(ctx context.Context, req domain.DonationRequest, newReceipt func() string) (domain.Settlement, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	settlement, err := r.settle(ctx, req, newReceipt)
	return settlement, classify("settle donation", err)
}

func (r *PostgresRepository) settle(ctx context.Context, req domain.DonationRequest, newReceipt func() string) (domain.Settlement, error) {
	var settlement domain.Settlement

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return settlement, err
	}
	defer tx.Rollback(ctx)

	user, err := lockUser(ctx, tx, req.Owner)
	if err != nil {
		return settlement, err
	}

	var charity domain.Charity
	err = tx.QueryRow(ctx,
		`SELECT id::text, name, zakat_eligible FROM charities WHERE id = $1`, req.CharityID,
	).Scan(&charity.ID, &charity.Name, &charity.ZakatEligible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settlement, fmt.Errorf("charity %s: %w", req.CharityID, domain.ErrNotFound)
		}
		return settlement, err
	}

	amount := user.PendingPledges
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		if req.Amount == nil {
			return settlement, domain.ErrNothingToDonate
		}
		return settlement, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidRequest)
	}

	donationType := req.DonationType
	if donationType == "" {
		donationType = user.DonationMode
	}
	if donationType == "" {
		donationType = domain.DonationTypeSadaqah
	}
	if !domain.ValidDonationType(donationType) {
		return settlement, fmt.Errorf("%w: unknown donation_type %q", domain.ErrInvalidRequest, donationType)
	}
	if donationType == domain.DonationTypeZakat && !charity.ZakatEligible {
		return settlement, domain.ErrCharityNotZakatReady
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.DefaultPaymentMethod
	}

	for attempt := 0; attempt < receiptAttempts && settlement.Donation == nil; attempt++ {
		rows, err := tx.Query(ctx, `
			INSERT INTO donations (amount, charity_id, charity_name, donation_type, payment_method, status, receipt_number, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (receipt_number) DO NOTHING
			RETURNING *`,
			amount, charity.ID, charity.Name, donationType, paymentMethod, domain.DonationCompleted, newReceipt(), req.Owner,
		)
		if err != nil {
			return settlement, err
		}
		inserted, err := collect(rows)
		if err != nil {
			return settlement, err
		}
		if len(inserted) == 1 {
			settlement.Donation = inserted[0]
		}
	}
	if settlement.Donation == nil {
		return settlement, fmt.Errorf("%w: could not allocate a unique receipt number", domain.ErrConflict)
	}

	pending, err := lockPendingPledges(ctx, tx, req.Owner)
	if err != nil {
		return settlement, err
	}
	settled, remaining := selectSettledPledges(pending, amount)

	if len(settled) > 0 {
		pledgeIDs := make([]string, 0, len(settled))
		transactionIDs := make([]string, 0, len(settled))
		for _, p := range settled {
			pledgeIDs = append(pledgeIDs, p.ID)
			transactionIDs = append(transactionIDs, p.TransactionID)
			settlement.SettledAmount = settlement.SettledAmount.Add(p.Amount)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE pledges SET status = $1, donation_id = $2, updated_date = NOW() WHERE id::text = ANY($3) AND status = $4`,
			domain.PledgeDonated, settlement.Donation["id"], pledgeIDs, domain.PledgePending,
		); err != nil {
			return settlement, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE transactions SET status = $1, updated_date = NOW() WHERE id::text = ANY($2) AND status = $3`,
			domain.TransactionDonated, transactionIDs, domain.TransactionPledged,
		); err != nil {
			return settlement, err
		}
		settlement.SettledPledges = pledgeIDs
	}

	err = tx.QueryRow(ctx,
		`UPDATE users SET pending_pledges = $1, total_donated = total_donated + $2, updated_date = NOW()
		 WHERE email = $3 RETURNING pending_pledges, total_donated`,
		remaining, amount, req.Owner,
	).Scan(&settlement.PendingPledges, &settlement.TotalDonated)
	if err != nil {
		return settlement, err
	}

	if err := tx.Commit(ctx); err != nil {
		return settlement, err
	}
	return settlement, nil
}

// FindAutoDonateCandidates lists opted-in users whose balance has reached their threshold.
func (r *PostgresRepository) FindAutoDonateCandidates(ctx context.Context, limit int) ([]domain.AutoDonateCandidate, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT email, preferred_charity::text, pending_pledges, auto_donate_threshold
		FROM users
		WHERE auto_donate_enabled
		  AND preferred_charity IS NOT NULL
		  AND pending_pledges > 0
		  AND pending_pledges >= auto_donate_threshold
		ORDER BY updated_date
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify("find auto-donate candidates", err)
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AutoDonateCandidate, error) {
		var c domain.AutoDonateCandidate
		err := row.Scan(&c.Email, &c.PreferredCharity, &c.PendingPledges, &c.Threshold)
		return c, err
	})
	if err != nil {
		return nil, classify("find auto-donate candidates", err)
	}
	return candidates, nil
}

// lockUser provisions the caller's users row if needed and locks it for the rest of tx.
func lockUser(ctx context.Context, q querier, email string) (domain.User, error) {
	var u domain.User
	if _, err := q.Exec(ctx,
		`INSERT INTO users (email, created_by) VALUES ($1, $1) ON CONFLICT (email) DO NOTHING`, email,
	); err != nil {
		return u, err
	}
	err := q.QueryRow(ctx, `
		SELECT id::text, email, pending_pledges, total_donated, preferred_charity::text,
		       auto_donate_threshold, auto_donate_enabled, donation_mode
		FROM users WHERE email = $1 FOR UPDATE`, email,
	).Scan(&u.ID, &u.Email, &u.PendingPledges, &u.TotalDonated, &u.PreferredCharity,
		&u.AutoDonateThreshold, &u.AutoDonateEnabled, &u.DonationMode)
	return u, err
}

func lockPendingPledges(ctx context.Context, q querier, owner string) ([]domain.PendingPledge, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, transaction_id::text, amount, created_date
		FROM pledges
		WHERE created_by = $1 AND status = $2
		ORDER BY created_date, id
		FOR UPDATE`, owner, domain.PledgePending)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PendingPledge, error) {
		var p domain.PendingPledge
		err := row.Scan(&p.ID, &p.TransactionID, &p.Amount, &p.CreatedDate)
		return p, err
	})
}

// selectSettledPledges takes the oldest-first prefix of pending whose running total
// stays within amount, and returns it with the sum of the pledges left pending.
func selectSettledPledges(pending []domain.PendingPledge, amount decimal.Decimal) ([]domain.PendingPledge, decimal.Decimal) {
	settledSum := decimal.Zero
	total := decimal.Zero
	cut := 0
	open := true
	for _, p := range pending {
		total = total.Add(p.Amount)
		if open && settledSum.Add(p.Amount).LessThanOrEqual(amount) {
			settledSum = settledSum.Add(p.Amount)
			cut++
			continue
		}
		open = false
	}
	return pending[:cut], total.Sub(settledSum)
}

func queryOne(ctx context.Context, q querier, stmt Statement) (domain.Row, error) {
	rows, err := q.Query(ctx, stmt.SQL, normalizeArgs(stmt.Args)...)
	if err != nil {
		return nil, err
	}
	out, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, pgx.ErrNoRows
	}
	return out[0], nil
}

func collect(rows pgx.Rows) ([]domain.Row, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Row, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		fields := row.FieldDescriptions()
		record := make(domain.Row, len(fields))
		for i, fd := range fields {
			record[fd.Name] = normalizeValue(fd.DataTypeOID, values[i])
		}
		return record, nil
	})
	if out == nil && err == nil {
		out = []domain.Row{}
	}
	return out, err
}

// normalizeValue converts driver values into JSON-friendly ones: uuids as strings,
// numerics as JSON numbers, dates as YYYY-MM-DD.
func normalizeValue(oid uint32, v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid || val.NaN || val.InfinityModifier != pgtype.Finite {
			return nil
		}
		return json.Number(decimal.NewFromBigInt(val.Int, val.Exp).String())
	case time.Time:
		if oid == pgtype.DateOID {
			return val.Format("2006-01-02")
		}
		return val
	default:
		return v
	}
}

// normalizeArgs prepares client-decoded values for the simple query protocol.
func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		switch val := arg.(type) {
		case json.Number:
			out[i] = val.String()
		case map[string]any, []any:
			encoded, err := json.Marshal(val)
			if err != nil {
				out[i] = arg
				continue
			}
			out[i] = string(encoded)
		default:
			out[i] = arg
		}
	}
	return out
}
