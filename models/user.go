package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserRole represents the authorization role of a user
type UserRole string

const (
	UserRoleUser       UserRole = "USER"
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// IsValid checks if the role is a known value
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin, UserRoleSuperAdmin:
		return true
	}
	return false
}

// User represents an account holder with a spendable balance and a trust score
type User struct {
	ID         int64           `db:"id"`
	Username   string          `db:"username"`
	Role       UserRole        `db:"role"`
	Balance    decimal.Decimal `db:"balance"`
	TrustScore float64         `db:"trust_score"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// NewUser creates a user with a zero balance and the default trust score
func NewUser(username string, role UserRole) (*User, error) {
	u := &User{
		Username:   strings.TrimSpace(username),
		Role:       role,
		Balance:    decimal.Zero,
		TrustScore: DefaultTrustScore,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks required fields
func (u *User) Validate() error {
	if u.Username == "" {
		return validationError("username is required")
	}
	if !u.Role.IsValid() {
		return validationError("unknown role %q", u.Role)
	}
	if u.Balance.IsNegative() {
		return validationError("balance cannot be negative")
	}
	if u.TrustScore < MinTrustScore || u.TrustScore > MaxTrustScore {
		return validationError("trust score %.2f out of range", u.TrustScore)
	}
	return nil
}

// IsAdmin checks if the user may adjudicate disputes and adjust balances
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleSuperAdmin
}

// CanAfford checks if the user has sufficient balance for an amount
func (u *User) CanAfford(amount decimal.Decimal) bool {
	return u.Balance.GreaterThanOrEqual(amount)
}

// Capabilities returns the trust-gated capabilities for the user's current score
func (u *User) Capabilities() TrustCapabilities {
	return CapabilitiesForScore(u.TrustScore)
}
