// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Deal model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a deal is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - SaveDeal returns ErrStaleVersion when the optimistic version check
//     fails, i.e. another writer mutated the row since it was read.
//   - On other DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.DealService) which enforces the eligibility guards and the
// monotonic stage rule.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleVersion is returned by SaveDeal when the stored version no longer
// matches the version the caller read, signalling a lost-update race.
var ErrStaleVersion = errors.New("deal version is stale")

// CreateDeal inserts a new Deal row. CreatedAt is set to UTC; the database
// assigns the numeric ID. The unique (property_id, buyer_id) index makes a
// second insert for the same pair fail with a constraint violation.
func CreateDeal(ctx context.Context, db *gorm.DB, d *domain.Deal) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(d).Error
}

// GetDeal fetches a single deal by ID, or ErrNotFound if missing.
func GetDeal(ctx context.Context, db *gorm.DB, id uint) (*domain.Deal, error) {
	var d domain.Deal
	if err := db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDealByPropertyAndBuyer fetches the unique deal for a (property, buyer)
// pair, or ErrNotFound when the pair has no deal yet.
func GetDealByPropertyAndBuyer(ctx context.Context, db *gorm.DB, propertyID, buyerID uint) (*domain.Deal, error) {
	var d domain.Deal
	err := db.WithContext(ctx).
		Where("property_id = ? AND buyer_id = ?", propertyID, buyerID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DealExists reports whether a deal already exists for the (property, buyer)
// pair.
func DealExists(ctx context.Context, db *gorm.DB, propertyID, buyerID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("property_id = ? AND buyer_id = ?", propertyID, buyerID).
		Count(&n).Error
	return n > 0, err
}

// SaveDeal persists the mutable fields of d guarded by an optimistic version
// check. The write only lands if the stored version still equals d.Version;
// otherwise ErrStaleVersion is returned and the caller should re-read and
// retry. On success d.Version is bumped to match the stored row.
func SaveDeal(ctx context.Context, db *gorm.DB, d *domain.Deal) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(map[string]any{
			"agent_id":          d.AgentID,
			"stage":             d.Stage,
			"agreed_price":      d.AgreedPrice,
			"notes":             d.Notes,
			"last_updated_by":   d.LastUpdatedBy,
			"inquiry_date":      d.InquiryDate,
			"shortlist_date":    d.ShortlistDate,
			"negotiation_date":  d.NegotiationDate,
			"agreement_date":    d.AgreementDate,
			"registration_date": d.RegistrationDate,
			"payment_date":      d.PaymentDate,
			"completed_date":    d.CompletedDate,
			"updated_at":        now,
			"version":           d.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

// dealScope narrows a deals query to the rows visible from the given view:
// buyer and agent views filter on their reference columns, the seller view
// joins through the property catalog to the owner, and the admin view is
// unfiltered.
func dealScope(db *gorm.DB, view domain.DealView, userID uint) *gorm.DB {
	q := db.Model(&domain.Deal{})
	switch view {
	case domain.ViewBuyer:
		return q.Where("deals.buyer_id = ?", userID)
	case domain.ViewSeller:
		return q.Joins("JOIN properties ON properties.id = deals.property_id").
			Where("properties.owner_id = ?", userID)
	case domain.ViewAgent:
		return q.Where("deals.agent_id = ?", userID)
	default: // domain.ViewAdmin
		return q
	}
}

// ListDealsForView returns the deals visible to userID under the given view,
// most recently updated first. An actor with no matching deals gets an empty
// slice, not an error.
func ListDealsForView(ctx context.Context, db *gorm.DB, view domain.DealView, userID uint) ([]domain.Deal, error) {
	var out []domain.Deal
	err := dealScope(db.WithContext(ctx), view, userID).
		Order("deals.updated_at desc").
		Find(&out).Error
	return out, err
}

// ListDealsByAgent returns all deals brokered by agentID.
func ListDealsByAgent(ctx context.Context, db *gorm.DB, agentID uint) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Find(&out).Error
	return out, err
}

// ListDealsByProperty returns all deals opened against propertyID.
func ListDealsByProperty(ctx context.Context, db *gorm.DB, propertyID uint) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Find(&out).Error
	return out, err
}

// ListDealsByStage returns all deals currently sitting at stage, most
// recently updated first.
func ListDealsByStage(ctx context.Context, db *gorm.DB, stage domain.DealStage) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("stage = ?", stage).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// ListActiveDealsByAgent returns the agent's deals that have not completed,
// most recently updated first.
func ListActiveDealsByAgent(ctx context.Context, db *gorm.DB, agentID uint) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("agent_id = ? AND stage <> ?", agentID, domain.StageCompleted).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// ListActiveDealsByBuyer returns the buyer's deals that have not completed,
// most recently updated first.
func ListActiveDealsByBuyer(ctx context.Context, db *gorm.DB, buyerID uint) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).
		Where("buyer_id = ? AND stage <> ?", buyerID, domain.StageCompleted).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// ListAllDeals returns the entire deal population. Aggregation recomputes
// over this set on demand.
func ListAllDeals(ctx context.Context, db *gorm.DB) ([]domain.Deal, error) {
	var out []domain.Deal
	err := db.WithContext(ctx).Find(&out).Error
	return out, err
}

// CountDealsByStage returns how many deals currently sit at stage.
func CountDealsByStage(ctx context.Context, db *gorm.DB, stage domain.DealStage) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("stage = ?", stage).
		Count(&n).Error
	return n, err
}
