// Package repo – small aggregate/statistics queries used primarily for
// conditional responses (ETag generation) in the HTTP layer. Each function is
// context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
)

// DealsStats returns aggregate metadata for the deals visible under a view:
// the total number of rows and the maximum UpdatedAt timestamp among those
// rows. The pair is cheap to compute and changes whenever any visible deal
// is created or mutated, which makes it a usable weak ETag source.
//
// When the view matches no deals, the returned count is 0 and maxUpdatedAt
// is nil.
func DealsStats(ctx context.Context, db *gorm.DB, view domain.DealView, userID uint) (count int64, maxUpdatedAt *time.Time, err error) {
	q := dealScope(db.WithContext(ctx), view, userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("deals.updated_at").Order("deals.updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
