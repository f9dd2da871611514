// Package domain defines the persistence models for deals and the
// property/user directory records they reference. These types are mapped
// with GORM and form the core data layer of the deal-tracking application.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DealStage is one position in the fixed, ordered deal-progress enumeration.
// Stages are persisted by name and compared by rank; a deal only ever moves
// to a stage with an equal or higher rank.
type DealStage string

// Deal stages in progression order. INQUIRY is the sole initial stage and
// COMPLETED the sole terminal one.
const (
	StageInquiry      DealStage = "INQUIRY"
	StageShortlist    DealStage = "SHORTLIST"
	StageNegotiation  DealStage = "NEGOTIATION"
	StageAgreement    DealStage = "AGREEMENT"
	StageRegistration DealStage = "REGISTRATION"
	StagePayment      DealStage = "PAYMENT"
	StageCompleted    DealStage = "COMPLETED"
)

// stageRanks assigns each stage its position in the total order.
var stageRanks = map[DealStage]int{
	StageInquiry:      1,
	StageShortlist:    2,
	StageNegotiation:  3,
	StageAgreement:    4,
	StageRegistration: 5,
	StagePayment:      6,
	StageCompleted:    7,
}

// ErrUnknownStage is returned by ParseDealStage for values outside the
// enumeration.
var ErrUnknownStage = errors.New("unknown deal stage")

// Rank returns the stage's position in the total order, or 0 for an
// unrecognized value.
func (s DealStage) Rank() int { return stageRanks[s] }

// Valid reports whether s is a member of the stage enumeration.
func (s DealStage) Valid() bool { return stageRanks[s] != 0 }

// ParseDealStage converts a wire value into a DealStage, returning
// ErrUnknownStage for anything outside the enumeration.
func ParseDealStage(v string) (DealStage, error) {
	s := DealStage(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, v)
	}
	return s, nil
}

// AllStages returns the stage enumeration in rank order.
func AllStages() []DealStage {
	return []DealStage{
		StageInquiry, StageShortlist, StageNegotiation, StageAgreement,
		StageRegistration, StagePayment, StageCompleted,
	}
}

// noteTimestampLayout formats the timestamp prefixed to each appended note.
const noteTimestampLayout = "2006-01-02 15:04"

// Deal tracks one transaction between a buyer and a property (via its owner),
// optionally brokered by an agent. A (property, buyer) pair maps to at most
// one deal, enforced by a unique index. Deals are a permanent ledger: there
// is no delete operation.
//
// Fields:
//   - ID: numeric primary key, assigned at creation.
//   - PropertyID / BuyerID / AgentID: non-owning references resolved against
//     the property and user directories. AgentID is nil until assignment.
//   - Stage: current position in the stage enumeration; never decreases.
//   - AgreedPrice: optional positive amount; once set, never cleared.
//   - Notes: append-only log, each entry prefixed with timestamp and actor.
//   - LastUpdatedBy: username of the most recent mutating actor.
//   - Version: optimistic-lock counter bumped on every mutation.
//   - Per-stage dates: set once, the first time the deal enters that stage.
type Deal struct {
	ID         uint             `json:"id"          gorm:"primaryKey"`
	PropertyID uint             `json:"property_id" gorm:"not null;uniqueIndex:ux_deals_property_buyer,priority:1"`
	BuyerID    uint             `json:"buyer_id"    gorm:"not null;index:idx_deals_buyer;uniqueIndex:ux_deals_property_buyer,priority:2"`
	AgentID    *uint            `json:"agent_id"    gorm:"index:idx_deals_agent"`
	Stage      DealStage        `json:"stage"       gorm:"type:varchar(16);not null;default:'INQUIRY';index:idx_deals_stage"`
	AgreedPrice *decimal.Decimal `json:"agreed_price,omitempty" gorm:"type:decimal(14,2)"`
	Notes         string    `json:"notes"           gorm:"type:text"`
	LastUpdatedBy string    `json:"last_updated_by" gorm:"type:varchar(64)"`
	Version       uint      `json:"-"               gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	InquiryDate      *time.Time `json:"inquiry_date,omitempty"`
	ShortlistDate    *time.Time `json:"shortlist_date,omitempty"`
	NegotiationDate  *time.Time `json:"negotiation_date,omitempty"`
	AgreementDate    *time.Time `json:"agreement_date,omitempty"`
	RegistrationDate *time.Time `json:"registration_date,omitempty"`
	PaymentDate      *time.Time `json:"payment_date,omitempty"`
	CompletedDate    *time.Time `json:"completed_date,omitempty"`
}

// TableName returns the database table name for Deal.
func (Deal) TableName() string { return "deals" }

// Active reports whether the deal has not yet completed.
func (d *Deal) Active() bool { return d.Stage != StageCompleted }

// StageDate returns the first-arrival timestamp recorded for stage, or nil
// if the deal has never entered it.
func (d *Deal) StageDate(stage DealStage) *time.Time {
	switch stage {
	case StageInquiry:
		return d.InquiryDate
	case StageShortlist:
		return d.ShortlistDate
	case StageNegotiation:
		return d.NegotiationDate
	case StageAgreement:
		return d.AgreementDate
	case StageRegistration:
		return d.RegistrationDate
	case StagePayment:
		return d.PaymentDate
	case StageCompleted:
		return d.CompletedDate
	}
	return nil
}

// StampStage records the first-arrival timestamp for stage. A date that is
// already set is never overwritten; the method reports whether it wrote.
func (d *Deal) StampStage(stage DealStage, at time.Time) bool {
	if d.StageDate(stage) != nil {
		return false
	}
	t := at
	switch stage {
	case StageInquiry:
		d.InquiryDate = &t
	case StageShortlist:
		d.ShortlistDate = &t
	case StageNegotiation:
		d.NegotiationDate = &t
	case StageAgreement:
		d.AgreementDate = &t
	case StageRegistration:
		d.RegistrationDate = &t
	case StagePayment:
		d.PaymentDate = &t
	case StageCompleted:
		d.CompletedDate = &t
	default:
		return false
	}
	return true
}

// AppendNote adds an audit entry to the append-only notes log, prefixed with
// the formatted timestamp and acting actor. Empty notes are ignored.
func (d *Deal) AppendNote(note, actor string, at time.Time) {
	if note == "" {
		return
	}
	entry := fmt.Sprintf("[%s - %s] %s", at.Format(noteTimestampLayout), actor, note)
	if d.Notes == "" {
		d.Notes = entry
		return
	}
	d.Notes += "\n" + entry
}
