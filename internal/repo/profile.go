package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/atelier-shop/backend/internal/models"
)

func (r *GormRepo) ProfileEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var p models.Profile
	if err := r.DB.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return "", err
	}
	return p.Email, nil
}
