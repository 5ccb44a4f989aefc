package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Table names used by the change feed. Feed filters match on the columns
// returned by FeedColumns, so every replicated row type lists the columns a
// subscriber may filter or scope on.
const (
	TableSessions          = "sessions"
	TableSessionUsers      = "session_users"
	TableSessionCartItems  = "session_cart_items"
	TablePersonalCartItems = "personal_cart_items"
)

type Session struct {
	ID        uuid.UUID `gorm:"primaryKey"                  json:"id"`
	Code      string    `gorm:"uniqueIndex;size:6;not null" json:"code"`
	CreatedBy uuid.UUID `gorm:"index;not null"              json:"created_by"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Session) TableName() string { return TableSessions }

func (s Session) FeedColumns() map[string]string {
	return map[string]string{
		"id":         s.ID.String(),
		"code":       s.Code,
		"created_by": s.CreatedBy.String(),
	}
}

type SessionUser struct {
	ID        uuid.UUID `gorm:"primaryKey"                            json:"id"`
	SessionID uuid.UUID `gorm:"uniqueIndex:idx_session_user;not null" json:"session_id"`
	UserID    uuid.UUID `gorm:"uniqueIndex:idx_session_user;not null" json:"user_id"`
	JoinedAt  time.Time `gorm:"not null"                              json:"joined_at"`
}

func (u *SessionUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now().UTC()
	}
	return nil
}

func (SessionUser) TableName() string { return TableSessionUsers }

func (u SessionUser) FeedColumns() map[string]string {
	return map[string]string{
		"id":         u.ID.String(),
		"session_id": u.SessionID.String(),
		"user_id":    u.UserID.String(),
	}
}

type SessionCartItem struct {
	SessionID uuid.UUID `gorm:"primaryKey"                 json:"session_id"`
	ItemID    string    `gorm:"primaryKey;size:64"         json:"item_id"`
	Name      string    `gorm:"not null"                   json:"name"`
	Price     float64   `gorm:"not null"                   json:"price"`
	Image     string    `json:"image"`
	Quantity  uint      `gorm:"default:1;check:quantity>0" json:"quantity"`
}

func (SessionCartItem) TableName() string { return TableSessionCartItems }

func (i SessionCartItem) FeedColumns() map[string]string {
	return map[string]string{
		"session_id": i.SessionID.String(),
		"item_id":    i.ItemID,
	}
}

type PersonalCartItem struct {
	UserID   uuid.UUID `gorm:"primaryKey"                 json:"user_id"`
	ItemID   string    `gorm:"primaryKey;size:64"         json:"item_id"`
	Name     string    `gorm:"not null"                   json:"name"`
	Price    float64   `gorm:"not null"                   json:"price"`
	Image    string    `json:"image"`
	Quantity uint      `gorm:"default:1;check:quantity>0" json:"quantity"`
}

func (PersonalCartItem) TableName() string { return TablePersonalCartItems }

func (i PersonalCartItem) FeedColumns() map[string]string {
	return map[string]string{
		"user_id": i.UserID.String(),
		"item_id": i.ItemID,
	}
}

// Profile mirrors the identity provider's user records. Rows are provisioned
// by the provider; this service only reads the email for participant display.
type Profile struct {
	ID    uuid.UUID `gorm:"primaryKey"      json:"id"`
	Email string    `gorm:"unique;not null" json:"email"`
}

func (Profile) TableName() string { return "profiles" }

type Product struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	Name        string  `gorm:"not null"           json:"name"`
	Description string  `json:"description"`
	Price       float64 `gorm:"not null"           json:"price"`
	Image       string  `json:"image"`
	Count       uint    `json:"count"`
}

func (Product) TableName() string { return "products" }
