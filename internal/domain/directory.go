// Package domain – directory records and role types.
//
// The deal engine does not own users or properties; it resolves them through
// the read-only directory tables modelled here. Property listing management,
// image storage, and authentication live outside this service.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Role is the account role recorded in the user directory.
type Role string

// Account roles.
const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// CanBroker reports whether a user with this role may act as a deal's agent.
func (r Role) CanBroker() bool { return r == RoleAgent || r == RoleAdmin }

// DealView selects which relationship scopes a deal listing: the requesting
// user as buyer, as seller (property owner), as agent, or as admin (all
// deals). It is a closed enumeration; unknown strings are a parse error, not
// an empty result.
type DealView string

// Deal listing perspectives.
const (
	ViewBuyer  DealView = "BUYER"
	ViewSeller DealView = "SELLER"
	ViewAgent  DealView = "AGENT"
	ViewAdmin  DealView = "ADMIN"
)

// ErrUnknownView is returned by ParseDealView for values outside the
// enumeration.
var ErrUnknownView = errors.New("unknown deal view")

// ParseDealView converts a role query parameter into a DealView
// (case-insensitive). Unknown values yield ErrUnknownView.
func ParseDealView(v string) (DealView, error) {
	switch dv := DealView(strings.ToUpper(strings.TrimSpace(v))); dv {
	case ViewBuyer, ViewSeller, ViewAgent, ViewAdmin:
		return dv, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownView, v)
	}
}

// User is a read-only record from the user directory.
type User struct {
	ID        uint   `json:"id"         gorm:"primaryKey"`
	Username  string `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex"`
	FirstName string `json:"first_name" gorm:"type:varchar(64)"`
	LastName  string `json:"last_name"  gorm:"type:varchar(64)"`
	Email     string `json:"email"      gorm:"type:varchar(128)"`
	Mobile    string `json:"mobile"     gorm:"type:varchar(32)"`
	Role      Role   `json:"role"       gorm:"type:varchar(16);not null;default:'USER';index:idx_users_role"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// FullName joins first and last name for display.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Property is a read-only record from the property catalog. OwnerID links to
// the user directory and identifies the seller side of any deal on the
// property.
type Property struct {
	ID      uint            `json:"id"       gorm:"primaryKey"`
	OwnerID uint            `json:"owner_id" gorm:"not null;index:idx_properties_owner"`
	Title   string          `json:"title"    gorm:"type:varchar(255);not null"`
	Price   decimal.Decimal `json:"price"    gorm:"type:decimal(14,2)"`
	City    string          `json:"city"     gorm:"type:varchar(64)"`
}

// TableName returns the database table name for Property.
func (Property) TableName() string { return "properties" }
