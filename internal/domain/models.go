package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the typed view of a users row used by the coordinators.
type User struct {
	ID                  string
	Email               string
	PendingPledges      decimal.Decimal
	TotalDonated        decimal.Decimal
	PreferredCharity    *string
	AutoDonateThreshold decimal.Decimal
	AutoDonateEnabled   bool
	DonationMode        string
}

// Charity is the subset of a charities row needed to settle a donation.
type Charity struct {
	ID            string
	Name          string
	ZakatEligible bool
}

// PendingPledge is a pledge awaiting settlement, in creation order.
type PendingPledge struct {
	ID            string
	TransactionID string
	Amount        decimal.Decimal
	CreatedDate   time.Time
}

// AccrualRequest carries a validated transaction insert for the accrual coordinator.
type AccrualRequest struct {
	Owner       string
	Transaction Row
	RoundUp     decimal.Decimal
}

// AccrualResult is what one accrual committed.
type AccrualResult struct {
	Transaction    Row
	Pledge         Row
	PendingPledges decimal.Decimal
}

// DonationRequest is a settlement input. A nil Amount donates the full pending balance;
// an empty DonationType falls back to the user's donation mode.
type DonationRequest struct {
	Owner         string
	CharityID     string
	Amount        *decimal.Decimal
	DonationType  string
	PaymentMethod string
}

// Settlement is what one donation committed.
type Settlement struct {
	Donation       Row
	SettledPledges []string
	SettledAmount  decimal.Decimal
	PendingPledges decimal.Decimal
	TotalDonated   decimal.Decimal
}

// AutoDonateCandidate is a user whose pending balance has reached its threshold.
type AutoDonateCandidate struct {
	Email            string
	PreferredCharity string
	PendingPledges   decimal.Decimal
	Threshold        decimal.Decimal
}

const (
	DefaultPaymentMethod = "credit_card"
	AutoPaymentMethod    = "auto"
)
