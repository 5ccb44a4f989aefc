package repo

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atelier-shop/backend/internal/feed"
)

// GormRepo is the session and cart store. Multi-step mutations run inside a
// single transaction; feed events are collected during the transaction and
// published only after it commits, so subscribers never observe rolled-back
// rows.
type GormRepo struct {
	DB   *gorm.DB
	Feed *feed.Feed
}

func (r *GormRepo) publish(events []feed.Event) {
	if r.Feed == nil {
		return
	}
	for _, e := range events {
		r.Feed.Publish(e)
	}
}

// lockForUpdate takes a FOR UPDATE row lock where the dialect supports one.
// SQLite has no row locks and rejects the clause; its single writer serializes
// the enclosing transactions instead.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
