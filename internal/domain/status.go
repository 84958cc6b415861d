/**
 * @description
 * Explicit status machines for transactions, pledges and donations. Every status
 * change in the service is checked against one of these tables; anything outside
 * a table is rejected with ErrInvalidTransition.
 */
package domain

import "fmt"

const (
	TransactionPending  = "pending"
	TransactionPledged  = "pledged"
	TransactionDonated  = "donated"
	TransactionExcluded = "excluded"

	PledgePending = "pending"
	PledgeDonated = "donated"

	DonationProcessing = "processing"
	DonationCompleted  = "completed"
	DonationFailed     = "failed"

	DonationTypeSadaqah = "sadaqah"
	DonationTypeZakat   = "zakat"
)

// StateMachine maps a status to the statuses it may move to.
type StateMachine map[string][]string

// Allows reports whether from -> to is a declared transition.
func (m StateMachine) Allows(from, to string) bool {
	for _, next := range m[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns ErrInvalidTransition when from -> to is not declared.
func (m StateMachine) Check(from, to string) error {
	if !m.Allows(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TransactionStates: pending -> pledged is taken by the accrual coordinator at insert
// time, pledged -> donated by settlement, pending <-> excluded by the user.
var TransactionStates = StateMachine{
	TransactionPending:  {TransactionPledged, TransactionExcluded},
	TransactionPledged:  {TransactionDonated},
	TransactionExcluded: {TransactionPending},
	TransactionDonated:  {},
}

// PledgeStates: pledges only move to donated, and only through settlement.
var PledgeStates = StateMachine{
	PledgePending: {PledgeDonated},
	PledgeDonated: {},
}

// DonationStates: completed and failed are terminal.
var DonationStates = StateMachine{
	DonationProcessing: {DonationCompleted, DonationFailed},
	DonationCompleted:  {},
	DonationFailed:     {},
}

// ValidDonationType reports whether t is a known donation type / donation mode.
func ValidDonationType(t string) bool {
	return t == DonationTypeSadaqah || t == DonationTypeZakat
}

// ExclusionTarget resolves the status a transaction moves to when the user toggles
// its excluded flag. Toggling to the state it is already in is a no-op.
func ExclusionTarget(current string, excluded bool) (string, error) {
	if excluded {
		if current == TransactionExcluded {
			return current, nil
		}
		return TransactionExcluded, TransactionStates.Check(current, TransactionExcluded)
	}
	if current != TransactionExcluded {
		return current, nil
	}
	return TransactionPending, nil
}
