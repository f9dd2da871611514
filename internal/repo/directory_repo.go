// Package repo – read-only directory lookups.
//
// The deal engine treats the property catalog and user directory as external
// collaborators: it resolves foreign references through the functions in this
// file and never mutates either table. Listing CRUD, image management, and
// account administration belong to other services.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/rakeshrachapudi/go-realty-backend/internal/domain"
)

// GetProperty fetches a property by ID, or ErrNotFound if absent.
func GetProperty(ctx context.Context, db *gorm.DB, id uint) (*domain.Property, error) {
	var p domain.Property
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUser fetches a user by ID, or ErrNotFound if absent.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersByRole returns every directory user holding the given role.
func ListUsersByRole(ctx context.Context, db *gorm.DB, role domain.Role) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("role = ?", role).
		Order("id").
		Find(&out).Error
	return out, err
}

// PropertiesByID fetches the given properties in one query and returns them
// keyed by ID. Missing IDs are simply absent from the map.
func PropertiesByID(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Property, error) {
	out := make(map[uint]domain.Property, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Property
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// UsersByID fetches the given users in one query and returns them keyed by
// ID. Missing IDs are simply absent from the map.
func UsersByID(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.User, error) {
	out := make(map[uint]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}
