// Package services – DealService
//
// This file implements the DealService, which owns the deal lifecycle: the
// eligibility guards applied at creation, the monotonic stage-transition
// engine with first-arrival stage timestamps, agent assignment, and the
// role-scoped listing used by the presentation layer. It coordinates the
// repository inside per-call transactions and converts persistence-level
// failures into the service-level sentinels defined in errors.go so handlers
// can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
	"github.com/rakeshrachapudi/go-realty-backend/internal/repo"
)

// DealService implements the use-cases around deal records. It is
// context-aware and opens its own transaction per mutating call so that the
// guard checks and the write are atomic.
type DealService struct {
	// DB is the database handle used for all deal operations.
	// The handle may be a plain *gorm.DB or a transaction-bound handle.
	DB *gorm.DB
}

// NewDealService constructs a DealService over the given GORM handle.
func NewDealService(db *gorm.DB) *DealService {
	return &DealService{DB: db}
}

// CreateDealInput carries the parameters for opening a deal through the
// strict entry point.
type CreateDealInput struct {
	PropertyID  uint
	BuyerID     uint
	AgentID     *uint
	AgreedPrice *decimal.Decimal
	Notes       string
	// Actor is the username of the requesting actor, recorded as
	// LastUpdatedBy and in the initial audit note.
	Actor string
}

// Create opens a new deal after the full eligibility guard chain.
//
// Semantics and validation, in order:
//   - property, buyer and (if supplied) agent must exist; otherwise
//     ErrPropertyNotFound / ErrBuyerNotFound / ErrAgentNotFound.
//   - at most one deal per (property, buyer): otherwise ErrDuplicateDeal.
//   - a supplied agent must hold the AGENT or ADMIN role (ErrNotAnAgent) and
//     must not own the property (ErrAgentOwnsProperty).
//   - the buyer must not own the property (ErrBuyerOwnsProperty).
//   - a supplied agreed price must be strictly positive (ErrInvalidPrice).
//
// On success the deal starts at INQUIRY with the inquiry timestamp stamped,
// an initiation note appended, and LastUpdatedBy set to the requesting actor.
func (s *DealService) Create(ctx context.Context, in CreateDealInput) (*domain.Deal, error) {
	var created *domain.Deal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := repo.GetProperty(ctx, tx, in.PropertyID)
		if err != nil {
			return asSentinel(err, ErrPropertyNotFound)
		}
		buyer, err := repo.GetUser(ctx, tx, in.BuyerID)
		if err != nil {
			return asSentinel(err, ErrBuyerNotFound)
		}

		exists, err := repo.DealExists(ctx, tx, in.PropertyID, in.BuyerID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateDeal
		}

		if in.AgentID != nil {
			agent, err := repo.GetUser(ctx, tx, *in.AgentID)
			if err != nil {
				return asSentinel(err, ErrAgentNotFound)
			}
			if !agent.Role.CanBroker() {
				return ErrNotAnAgent
			}
			if property.OwnerID == agent.ID {
				return ErrAgentOwnsProperty
			}
		}
		if property.OwnerID == buyer.ID {
			return ErrBuyerOwnsProperty
		}
		if in.AgreedPrice != nil && !in.AgreedPrice.IsPositive() {
			return ErrInvalidPrice
		}

		now := time.Now().UTC()
		d := &domain.Deal{
			PropertyID:    in.PropertyID,
			BuyerID:       in.BuyerID,
			AgentID:       in.AgentID,
			Stage:         domain.StageInquiry,
			AgreedPrice:   in.AgreedPrice,
			LastUpdatedBy: in.Actor,
			CreatedAt:     now,
		}
		d.StampStage(domain.StageInquiry, now)
		d.AppendNote(initialNote(in.Notes, in.AgreedPrice), in.Actor, now)

		if err := repo.CreateDeal(ctx, tx, d); err != nil {
			// Losing the insert race maps to the same outcome as the
			// uniqueness pre-check.
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				return ErrDuplicateDeal
			}
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FindOrCreate returns the existing deal for (propertyID, buyerID) or opens
// one when the pair has none. This is the deliberately looser entry point
// used by implicit deal-opening flows: it sets no price and skips the
// ownership-conflict guards, though a supplied agent must still hold the
// AGENT or ADMIN role. LastUpdatedBy falls back to the buyer's username.
func (s *DealService) FindOrCreate(ctx context.Context, propertyID, buyerID uint, agentID *uint) (*domain.Deal, error) {
	var out *domain.Deal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.GetDealByPropertyAndBuyer(ctx, tx, propertyID, buyerID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		if _, err := repo.GetProperty(ctx, tx, propertyID); err != nil {
			return asSentinel(err, ErrPropertyNotFound)
		}
		buyer, err := repo.GetUser(ctx, tx, buyerID)
		if err != nil {
			return asSentinel(err, ErrBuyerNotFound)
		}
		if agentID != nil {
			agent, err := repo.GetUser(ctx, tx, *agentID)
			if err != nil {
				return asSentinel(err, ErrAgentNotFound)
			}
			if !agent.Role.CanBroker() {
				return ErrNotAnAgent
			}
		}

		now := time.Now().UTC()
		d := &domain.Deal{
			PropertyID:    propertyID,
			BuyerID:       buyerID,
			AgentID:       agentID,
			Stage:         domain.StageInquiry,
			LastUpdatedBy: buyer.Username,
			CreatedAt:     now,
		}
		d.StampStage(domain.StageInquiry, now)
		d.AppendNote("Deal initiated - Initial Inquiry", buyer.Username, now)

		if err := repo.CreateDeal(ctx, tx, d); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				return ErrDuplicateDeal
			}
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceStage moves a deal to target and records the transition.
//
// Semantics:
//   - the deal must exist (ErrDealNotFound) and target must be a member of
//     the stage enumeration (ErrInvalidStage).
//   - target's rank must be >= the current stage's rank; a lower rank is
//     rejected with ErrStageRegression. Re-setting the same stage is a
//     permitted no-op transition that still appends the note and refreshes
//     UpdatedAt.
//   - the per-stage timestamp for target is stamped only on first arrival
//     and is immutable once set.
//   - a non-empty note is appended to the audit log with timestamp and actor.
//
// The write is guarded by the deal's optimistic version; losing a race with
// a concurrent writer yields ErrStaleDeal and no partial update.
func (s *DealService) AdvanceStage(ctx context.Context, dealID uint, target domain.DealStage, note, actor string) (*domain.Deal, error) {
	if !target.Valid() {
		return nil, ErrInvalidStage
	}

	var out *domain.Deal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := repo.GetDeal(ctx, tx, dealID)
		if err != nil {
			return asSentinel(err, ErrDealNotFound)
		}
		if target.Rank() < d.Stage.Rank() {
			return ErrStageRegression
		}

		now := time.Now().UTC()
		d.Stage = target
		d.StampStage(target, now)
		d.AppendNote(note, actor, now)
		d.LastUpdatedBy = actor

		if err := repo.SaveDeal(ctx, tx, d); err != nil {
			if errors.Is(err, repo.ErrStaleVersion) {
				return ErrStaleDeal
			}
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignAgent attaches an agent to an existing deal. The agent must exist
// (ErrAgentNotFound) and hold the AGENT or ADMIN role (ErrNotAnAgent); per
// the single brokerage policy applied across the service, the agent must
// also not own the deal's property (ErrAgentOwnsProperty). LastUpdatedBy is
// set to the acting actor.
func (s *DealService) AssignAgent(ctx context.Context, dealID, agentID uint, actor string) (*domain.Deal, error) {
	var out *domain.Deal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := repo.GetDeal(ctx, tx, dealID)
		if err != nil {
			return asSentinel(err, ErrDealNotFound)
		}
		agent, err := repo.GetUser(ctx, tx, agentID)
		if err != nil {
			return asSentinel(err, ErrAgentNotFound)
		}
		if !agent.Role.CanBroker() {
			return ErrNotAnAgent
		}
		property, err := repo.GetProperty(ctx, tx, d.PropertyID)
		if err != nil {
			return asSentinel(err, ErrPropertyNotFound)
		}
		if property.OwnerID == agent.ID {
			return ErrAgentOwnsProperty
		}

		d.AgentID = &agent.ID
		d.LastUpdatedBy = actor

		if err := repo.SaveDeal(ctx, tx, d); err != nil {
			if errors.Is(err, repo.ErrStaleVersion) {
				return ErrStaleDeal
			}
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a single deal by ID, or ErrDealNotFound.
func (s *DealService) Get(ctx context.Context, dealID uint) (*domain.Deal, error) {
	d, err := repo.GetDeal(ctx, s.DB, dealID)
	if err != nil {
		return nil, asSentinel(err, ErrDealNotFound)
	}
	return d, nil
}

// DealsForActor returns the denormalized deal list visible to userID under
// the given view, most recently updated first. Counterparty names and
// contacts are resolved against the directories in bulk.
func (s *DealService) DealsForActor(ctx context.Context, userID uint, view domain.DealView) ([]DealDetail, error) {
	deals, err := repo.ListDealsForView(ctx, s.DB, view, userID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, deals)
}

// DealsForProperty returns every deal opened against a property.
func (s *DealService) DealsForProperty(ctx context.Context, propertyID uint) ([]domain.Deal, error) {
	return repo.ListDealsByProperty(ctx, s.DB, propertyID)
}

// ActiveDealsForAgent returns an agent's not-yet-completed deals.
func (s *DealService) ActiveDealsForAgent(ctx context.Context, agentID uint) ([]domain.Deal, error) {
	return repo.ListActiveDealsByAgent(ctx, s.DB, agentID)
}

// ActiveDealsForBuyer returns a buyer's not-yet-completed deals.
func (s *DealService) ActiveDealsForBuyer(ctx context.Context, buyerID uint) ([]domain.Deal, error) {
	return repo.ListActiveDealsByBuyer(ctx, s.DB, buyerID)
}

// DealsByStage returns all deals currently at stage.
func (s *DealService) DealsByStage(ctx context.Context, stage domain.DealStage) ([]domain.Deal, error) {
	if !stage.Valid() {
		return nil, ErrInvalidStage
	}
	return repo.ListDealsByStage(ctx, s.DB, stage)
}

// DealsForAgent returns every deal brokered by agentID (admin view). The
// target user must exist and hold a brokering role; pointing this at a plain
// USER yields ErrNotAnAgent rather than an empty list.
func (s *DealService) DealsForAgent(ctx context.Context, agentID uint) ([]DealDetail, error) {
	agent, err := repo.GetUser(ctx, s.DB, agentID)
	if err != nil {
		return nil, asSentinel(err, ErrAgentNotFound)
	}
	if !agent.Role.CanBroker() {
		return nil, ErrNotAnAgent
	}
	deals, err := repo.ListDealsByAgent(ctx, s.DB, agentID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, deals)
}

// DealDetail is the presentation-layer projection of a deal: the record
// itself plus the denormalized property, buyer, seller, and agent details
// resolved from the directories.
type DealDetail struct {
	DealID        uint             `json:"deal_id"`
	Stage         domain.DealStage `json:"stage"`
	AgreedPrice   *decimal.Decimal `json:"agreed_price,omitempty"`
	Notes         string           `json:"notes"`
	LastUpdatedBy string           `json:"last_updated_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	PropertyID    uint            `json:"property_id"`
	PropertyTitle string          `json:"property_title"`
	PropertyPrice decimal.Decimal `json:"property_price"`
	PropertyCity  string          `json:"property_city"`

	BuyerID     uint   `json:"buyer_id"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	BuyerMobile string `json:"buyer_mobile"`

	SellerID     uint   `json:"seller_id"`
	SellerName   string `json:"seller_name"`
	SellerEmail  string `json:"seller_email"`
	SellerMobile string `json:"seller_mobile"`

	AgentID     *uint  `json:"agent_id,omitempty"`
	AgentName   string `json:"agent_name,omitempty"`
	AgentEmail  string `json:"agent_email,omitempty"`
	AgentMobile string `json:"agent_mobile,omitempty"`

	InquiryDate      *time.Time `json:"inquiry_date,omitempty"`
	ShortlistDate    *time.Time `json:"shortlist_date,omitempty"`
	NegotiationDate  *time.Time `json:"negotiation_date,omitempty"`
	AgreementDate    *time.Time `json:"agreement_date,omitempty"`
	RegistrationDate *time.Time `json:"registration_date,omitempty"`
	PaymentDate      *time.Time `json:"payment_date,omitempty"`
	CompletedDate    *time.Time `json:"completed_date,omitempty"`
}

// details resolves the directory references for a batch of deals and builds
// their presentation projections, preserving input order.
func (s *DealService) details(ctx context.Context, deals []domain.Deal) ([]DealDetail, error) {
	out := make([]DealDetail, 0, len(deals))
	if len(deals) == 0 {
		return out, nil
	}

	propertyIDs := make([]uint, 0, len(deals))
	seenProps := make(map[uint]struct{}, len(deals))
	for _, d := range deals {
		if _, ok := seenProps[d.PropertyID]; !ok {
			seenProps[d.PropertyID] = struct{}{}
			propertyIDs = append(propertyIDs, d.PropertyID)
		}
	}
	properties, err := repo.PropertiesByID(ctx, s.DB, propertyIDs)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uint, 0, len(deals)*3)
	seenUsers := make(map[uint]struct{}, len(deals)*3)
	collect := func(id uint) {
		if _, ok := seenUsers[id]; !ok {
			seenUsers[id] = struct{}{}
			userIDs = append(userIDs, id)
		}
	}
	for _, d := range deals {
		collect(d.BuyerID)
		if d.AgentID != nil {
			collect(*d.AgentID)
		}
		if p, ok := properties[d.PropertyID]; ok {
			collect(p.OwnerID)
		}
	}
	users, err := repo.UsersByID(ctx, s.DB, userIDs)
	if err != nil {
		return nil, err
	}

	for _, d := range deals {
		detail := DealDetail{
			DealID:        d.ID,
			Stage:         d.Stage,
			AgreedPrice:   d.AgreedPrice,
			Notes:         d.Notes,
			LastUpdatedBy: d.LastUpdatedBy,
			CreatedAt:     d.CreatedAt,
			UpdatedAt:     d.UpdatedAt,
			PropertyID:    d.PropertyID,
			BuyerID:       d.BuyerID,
			AgentID:       d.AgentID,

			InquiryDate:      d.InquiryDate,
			ShortlistDate:    d.ShortlistDate,
			NegotiationDate:  d.NegotiationDate,
			AgreementDate:    d.AgreementDate,
			RegistrationDate: d.RegistrationDate,
			PaymentDate:      d.PaymentDate,
			CompletedDate:    d.CompletedDate,
		}
		if p, ok := properties[d.PropertyID]; ok {
			detail.PropertyTitle = p.Title
			detail.PropertyPrice = p.Price
			detail.PropertyCity = p.City
			if seller, ok := users[p.OwnerID]; ok {
				detail.SellerID = seller.ID
				detail.SellerName = seller.FullName()
				detail.SellerEmail = seller.Email
				detail.SellerMobile = seller.Mobile
			}
		}
		if buyer, ok := users[d.BuyerID]; ok {
			detail.BuyerName = buyer.FullName()
			detail.BuyerEmail = buyer.Email
			detail.BuyerMobile = buyer.Mobile
		}
		if d.AgentID != nil {
			if agent, ok := users[*d.AgentID]; ok {
				detail.AgentName = agent.FullName()
				detail.AgentEmail = agent.Email
				detail.AgentMobile = agent.Mobile
			}
		}
		out = append(out, detail)
	}
	return out, nil
}

// initialNote builds the creation audit entry: the caller-supplied note when
// present, otherwise "Deal initiated" with the agreed price if one was given.
func initialNote(notes string, price *decimal.Decimal) string {
	if strings.TrimSpace(notes) != "" {
		return notes
	}
	if price != nil {
		return fmt.Sprintf("Deal initiated - Agreed Price: %s", price.StringFixed(2))
	}
	return "Deal initiated"
}

// asSentinel maps a repo-level not-found onto the given service sentinel,
// passing any other error through unchanged.
func asSentinel(err error, sentinel error) error {
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
