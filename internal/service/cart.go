package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/models"
	"github.com/atelier-shop/backend/internal/repo"
)

// ItemInput describes the line item being added to a cart. Quantity is not a
// caller input: a first add always lands at 1, later adds increment.
type ItemInput struct {
	ItemID string
	Name   string
	Price  float64
	Image  string
}

type CartService struct {
	Repo *repo.GormRepo
}

func (c *CartService) PersonalItems(ctx context.Context, userID uuid.UUID) ([]models.PersonalCartItem, error) {
	return c.Repo.PersonalCartItems(ctx, userID)
}

func (c *CartService) SessionItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionCartItem, error) {
	return c.Repo.SessionCartItems(ctx, sessionID)
}

func (c *CartService) AddPersonalItem(ctx context.Context, userID uuid.UUID, in ItemInput) (*models.PersonalCartItem, error) {
	if in.ItemID == "" {
		return nil, fmt.Errorf("item id required: %w", ErrCartWriteFailed)
	}
	item := &models.PersonalCartItem{
		UserID: userID,
		ItemID: in.ItemID,
		Name:   in.Name,
		Price:  in.Price,
		Image:  in.Image,
	}
	if err := c.Repo.UpsertPersonalCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add personal item: %w: %w", ErrCartWriteFailed, err)
	}
	return item, nil
}

func (c *CartService) AddSessionItem(ctx context.Context, sessionID uuid.UUID, in ItemInput) (*models.SessionCartItem, error) {
	if in.ItemID == "" {
		return nil, fmt.Errorf("item id required: %w", ErrCartWriteFailed)
	}
	item := &models.SessionCartItem{
		SessionID: sessionID,
		ItemID:    in.ItemID,
		Name:      in.Name,
		Price:     in.Price,
		Image:     in.Image,
	}
	if err := c.Repo.UpsertSessionCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add session item: %w: %w", ErrCartWriteFailed, err)
	}
	return item, nil
}

// UpdatePersonalQuantity applies delta to the item's quantity, clamped at
// zero. Hitting zero removes the row; removed reports that.
func (c *CartService) UpdatePersonalQuantity(ctx context.Context, userID uuid.UUID, itemID string, delta int) (*models.PersonalCartItem, bool, error) {
	item, removed, err := c.Repo.UpdatePersonalCartQuantity(ctx, userID, itemID, delta)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrItemNotFound
		}
		return nil, false, fmt.Errorf("update personal quantity: %w: %w", ErrCartWriteFailed, err)
	}
	return item, removed, nil
}

func (c *CartService) UpdateSessionQuantity(ctx context.Context, sessionID uuid.UUID, itemID string, delta int) (*models.SessionCartItem, bool, error) {
	item, removed, err := c.Repo.UpdateSessionCartQuantity(ctx, sessionID, itemID, delta)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrItemNotFound
		}
		return nil, false, fmt.Errorf("update session quantity: %w: %w", ErrCartWriteFailed, err)
	}
	return item, removed, nil
}

func (c *CartService) RemovePersonalItem(ctx context.Context, userID uuid.UUID, itemID string) error {
	if err := c.Repo.RemovePersonalCartItem(ctx, userID, itemID); err != nil {
		return fmt.Errorf("remove personal item: %w: %w", ErrCartWriteFailed, err)
	}
	return nil
}

func (c *CartService) RemoveSessionItem(ctx context.Context, sessionID uuid.UUID, itemID string) error {
	if err := c.Repo.RemoveSessionCartItem(ctx, sessionID, itemID); err != nil {
		return fmt.Errorf("remove session item: %w: %w", ErrCartWriteFailed, err)
	}
	return nil
}
