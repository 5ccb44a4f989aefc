package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
	"github.com/atelier-shop/backend/internal/repo"
)

type testEnv struct {
	DB       *gorm.DB
	Feed     *feed.Feed
	Repo     *repo.GormRepo
	Sessions *SessionService
	Carts    *CartService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Session{},
		&models.SessionUser{},
		&models.SessionCartItem{},
		&models.PersonalCartItem{},
		&models.Profile{},
		&models.Product{},
	))

	f := feed.New()
	r := &repo.GormRepo{DB: db, Feed: f}

	return &testEnv{
		DB:       db,
		Feed:     f,
		Repo:     r,
		Sessions: &SessionService{Repo: r, State: NewClientState()},
		Carts:    &CartService{Repo: r},
	}
}

func (env *testEnv) createProfile(t *testing.T, email string) uuid.UUID {
	t.Helper()
	p := models.Profile{ID: uuid.New(), Email: email}
	require.NoError(t, env.DB.Create(&p).Error)
	return p.ID
}
