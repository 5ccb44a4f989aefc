package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
)

func (r *GormRepo) SessionCartItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionCartItem, error) {
	var items []models.SessionCartItem
	if err := r.DB.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("item_id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) PersonalCartItems(ctx context.Context, userID uuid.UUID) ([]models.PersonalCartItem, error) {
	var items []models.PersonalCartItem
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("item_id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertSessionCartItem adds one unit of the item to the session cart:
// quantity 1 on first insert, +1 on an existing row.
func (r *GormRepo) UpsertSessionCartItem(ctx context.Context, item *models.SessionCartItem) error {
	inserted := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SessionCartItem{}).
			Where("session_id = ? AND item_id = ?", item.SessionID, item.ItemID).
			Update("quantity", gorm.Expr("quantity + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return tx.Where("session_id = ? AND item_id = ?", item.SessionID, item.ItemID).
				First(item).Error
		}

		item.Quantity = 1
		inserted = true
		return tx.Create(item).Error
	})
	if err != nil {
		return err
	}

	typ := feed.Update
	if inserted {
		typ = feed.Insert
	}
	r.publish([]feed.Event{
		{Table: models.TableSessionCartItems, Type: typ, New: *item},
	})
	return nil
}

func (r *GormRepo) UpsertPersonalCartItem(ctx context.Context, item *models.PersonalCartItem) error {
	inserted := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PersonalCartItem{}).
			Where("user_id = ? AND item_id = ?", item.UserID, item.ItemID).
			Update("quantity", gorm.Expr("quantity + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return tx.Where("user_id = ? AND item_id = ?", item.UserID, item.ItemID).
				First(item).Error
		}

		item.Quantity = 1
		inserted = true
		return tx.Create(item).Error
	})
	if err != nil {
		return err
	}

	typ := feed.Update
	if inserted {
		typ = feed.Insert
	}
	r.publish([]feed.Event{
		{Table: models.TablePersonalCartItems, Type: typ, New: *item},
	})
	return nil
}

// UpdateSessionCartQuantity applies delta to the row's quantity, clamped at
// zero; a zero result deletes the row. The row is read under a lock so two
// concurrent deltas serialize instead of both writing from the same stale
// quantity.
func (r *GormRepo) UpdateSessionCartQuantity(ctx context.Context, sessionID uuid.UUID, itemID string, delta int) (*models.SessionCartItem, bool, error) {
	var item models.SessionCartItem
	removed := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("session_id = ? AND item_id = ?", sessionID, itemID).
			First(&item).Error; err != nil {
			return err
		}
		q := clampQuantity(item.Quantity, delta)
		if q == 0 {
			removed = true
			return tx.Delete(&item).Error
		}
		item.Quantity = q
		return tx.Model(&models.SessionCartItem{}).
			Where("session_id = ? AND item_id = ?", sessionID, itemID).
			Update("quantity", q).Error
	})
	if err != nil {
		return nil, false, err
	}

	if removed {
		r.publish([]feed.Event{
			{Table: models.TableSessionCartItems, Type: feed.Delete, Old: item},
		})
		return nil, true, nil
	}
	r.publish([]feed.Event{
		{Table: models.TableSessionCartItems, Type: feed.Update, New: item},
	})
	return &item, false, nil
}

func (r *GormRepo) UpdatePersonalCartQuantity(ctx context.Context, userID uuid.UUID, itemID string, delta int) (*models.PersonalCartItem, bool, error) {
	var item models.PersonalCartItem
	removed := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("user_id = ? AND item_id = ?", userID, itemID).
			First(&item).Error; err != nil {
			return err
		}
		q := clampQuantity(item.Quantity, delta)
		if q == 0 {
			removed = true
			return tx.Delete(&item).Error
		}
		item.Quantity = q
		return tx.Model(&models.PersonalCartItem{}).
			Where("user_id = ? AND item_id = ?", userID, itemID).
			Update("quantity", q).Error
	})
	if err != nil {
		return nil, false, err
	}

	if removed {
		r.publish([]feed.Event{
			{Table: models.TablePersonalCartItems, Type: feed.Delete, Old: item},
		})
		return nil, true, nil
	}
	r.publish([]feed.Event{
		{Table: models.TablePersonalCartItems, Type: feed.Update, New: item},
	})
	return &item, false, nil
}

// RemoveSessionCartItem deletes the row if present. Removing an absent row is
// not an error.
func (r *GormRepo) RemoveSessionCartItem(ctx context.Context, sessionID uuid.UUID, itemID string) error {
	var item models.SessionCartItem
	found := true

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND item_id = ?", sessionID, itemID).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return err
	}

	if found {
		r.publish([]feed.Event{
			{Table: models.TableSessionCartItems, Type: feed.Delete, Old: item},
		})
	}
	return nil
}

func (r *GormRepo) RemovePersonalCartItem(ctx context.Context, userID uuid.UUID, itemID string) error {
	var item models.PersonalCartItem
	found := true

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND item_id = ?", userID, itemID).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return err
	}

	if found {
		r.publish([]feed.Event{
			{Table: models.TablePersonalCartItems, Type: feed.Delete, Old: item},
		})
	}
	return nil
}

func clampQuantity(current uint, delta int) uint {
	n := int(current) + delta
	if n < 0 {
		return 0
	}
	return uint(n)
}
