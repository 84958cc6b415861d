/**
 * @description
 * Resource configuration for the generic CRUD layer. Each exposed collection is an
 * immutable ResourceConfig in a closed registry; table and column names used in SQL
 * come only from here, never from request input.
 */
package domain

import (
	"fmt"
	"sort"
)

// Row is a single record as exchanged with the store and with HTTP clients.
type Row map[string]any

// OwnerColumn holds the owning identity (caller email) on every table.
const OwnerColumn = "created_by"

// ResourceConfig describes how one table is exposed.
type ResourceConfig struct {
	Name        string
	Table       string
	AllowedSort []string
	UserScoped  bool

	// Insertable and Updatable are the columns a client body may set.
	Insertable []string
	Updatable  []string
	// Ignored keys are accepted in a create body but dropped, because the server
	// derives them (e.g. a transaction's round_up_amount).
	Ignored []string

	// ReadOnly resources reject create, update and delete.
	ReadOnly bool
	// NoDelete resources reject delete.
	NoDelete bool
	// DeletableStatuses, when set, restricts delete to rows in one of these statuses.
	DeletableStatuses []string
	// Statuses, when set, guards client-driven changes of the status column.
	Statuses StateMachine
	// SelfColumn names the column that holds the caller's own identity on tables
	// that are readable by everyone but writable only by the row's subject.
	SelfColumn string
}

const (
	ResourceUsers        = "users"
	ResourceBankAccounts = "bankaccounts"
	ResourceTransactions = "transactions"
	ResourceDonations    = "donations"
	ResourcePledges      = "pledges"
	ResourceCharities    = "charities"
)

var userColumns = []string{
	"full_name", "preferred_charity", "auto_donate_threshold", "auto_donate_enabled",
	"donation_mode", "notification_preferences",
}

var charityColumns = []string{"name", "description", "category", "zakat_eligible", "website", "logo_url"}

var bankAccountColumns = []string{
	"plaid_item_id", "plaid_account_id", "account_name", "account_mask",
	"account_type", "institution_name", "is_active", "connection_status",
}

var registry = map[string]ResourceConfig{
	ResourceUsers: {
		Name:        ResourceUsers,
		Table:       "users",
		AllowedSort: []string{"created_date", "updated_date", "email", "full_name"},
		UserScoped:  false,
		Insertable:  append([]string{"email"}, userColumns...),
		Updatable:   userColumns,
		Ignored:     []string{"pending_pledges", "total_donated"},
		NoDelete:    true,
		SelfColumn:  "email",
	},
	ResourceBankAccounts: {
		Name:        ResourceBankAccounts,
		Table:       "bank_accounts",
		AllowedSort: []string{"created_date", "updated_date", "institution_name", "account_name"},
		UserScoped:  true,
		Insertable:  bankAccountColumns,
		Updatable:   bankAccountColumns,
	},
	ResourceTransactions: {
		Name:              ResourceTransactions,
		Table:             "transactions",
		AllowedSort:       []string{"created_date", "updated_date", "date", "amount", "merchant_name", "category"},
		UserScoped:        true,
		Insertable:        []string{"merchant_name", "amount", "date", "category", "account_last_four"},
		Updatable:         []string{"merchant_name", "date", "category", "account_last_four", "excluded"},
		Ignored:           []string{"round_up_amount", "status", "excluded"},
		DeletableStatuses: []string{TransactionPending, TransactionExcluded},
		Statuses:          TransactionStates,
	},
	ResourceDonations: {
		Name:        ResourceDonations,
		Table:       "donations",
		AllowedSort: []string{"created_date", "updated_date", "amount", "charity_name"},
		UserScoped:  true,
		Insertable:  []string{"charity_id", "amount", "donation_type", "payment_method"},
		Updatable:   []string{"status"},
		Ignored:     []string{"charity_name", "status", "receipt_number"},
		NoDelete:    true,
		Statuses:    DonationStates,
	},
	ResourcePledges: {
		Name:        ResourcePledges,
		Table:       "pledges",
		AllowedSort: []string{"created_date", "updated_date", "amount"},
		UserScoped:  true,
		ReadOnly:    true,
		Statuses:    PledgeStates,
	},
	ResourceCharities: {
		Name:        ResourceCharities,
		Table:       "charities",
		AllowedSort: []string{"created_date", "updated_date", "name", "category"},
		UserScoped:  false,
		Insertable:  charityColumns,
		Updatable:   charityColumns,
	},
}

// Resource returns the configuration registered under name.
func Resource(name string) (ResourceConfig, error) {
	cfg, ok := registry[name]
	if !ok {
		return ResourceConfig{}, fmt.Errorf("%w: unknown resource %q", ErrNotFound, name)
	}
	return cfg, nil
}

// MustResource is Resource for names that are compile-time constants.
func MustResource(name string) ResourceConfig {
	cfg, err := Resource(name)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ResourceNames lists the registry in a stable order.
func ResourceNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanInsert reports whether a create body may carry column.
func (c ResourceConfig) CanInsert(column string) bool { return contains(c.Insertable, column) }

// CanUpdate reports whether an update body may carry column.
func (c ResourceConfig) CanUpdate(column string) bool { return contains(c.Updatable, column) }

// IsIgnored reports whether column is a server-derived key dropped from create bodies.
func (c ResourceConfig) IsIgnored(column string) bool { return contains(c.Ignored, column) }

// CanDeleteInStatus reports whether a row in status may be deleted.
func (c ResourceConfig) CanDeleteInStatus(status string) bool {
	if len(c.DeletableStatuses) == 0 {
		return true
	}
	return contains(c.DeletableStatuses, status)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
