package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// BalanceSide is the side on which an account's balance normally grows.
type BalanceSide string

const (
	SideDebit  BalanceSide = "debit"
	SideCredit BalanceSide = "credit"
)

// NormalSide returns the normal balance side for the account type.
// Asset and expense accounts are debit-normal, the rest are credit-normal.
func (t AccountType) NormalSide() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// DefaultAllowNegative is the recommended default for the allow-negative
// flag when the caller does not set one. It is a default, not a rule: the
// flag is stored per account and can be overridden at creation.
func DefaultAllowNegative(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return false
	default:
		return true
	}
}

// Account represents a ledger account that can hold a balance.
// Type, currency and the derived normal side are immutable after creation;
// the only mutable attributes are the materialized balance (written solely
// by the posting path) and the active flag.
type Account struct {
	ID            string
	Name          string
	Type          AccountType
	Currency      string
	Balance       decimal.Decimal
	Version       int64
	AllowNegative bool
	Active        bool
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalSide returns the account's normal balance side.
func (a *Account) NormalSide() BalanceSide {
	return a.Type.NormalSide()
}

// SignedDelta returns the balance movement an entry of the given direction
// and amount causes on this account. Entries on the normal side increase
// the balance, entries on the opposite side decrease it.
func (a *Account) SignedDelta(direction EntryDirection, amount decimal.Decimal) decimal.Decimal {
	onNormalSide := (a.NormalSide() == SideDebit) == (direction == DirectionDebit)
	if onNormalSide {
		return amount
	}
	return amount.Neg()
}

// ValidateBalance checks the sign policy against a prospective balance.
func (a *Account) ValidateBalance(newBalance decimal.Decimal) error {
	if !a.AllowNegative && newBalance.IsNegative() {
		return ErrInsufficientBalance
	}
	return nil
}
