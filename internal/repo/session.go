package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
)

func (r *GormRepo) SessionByCreator(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	var s models.Session
	if err := r.DB.WithContext(ctx).Where("created_by = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormRepo) SessionByCode(ctx context.Context, code string) (*models.Session, error) {
	var s models.Session
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormRepo) SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSessionWithCreator inserts the session row and the creator's own
// membership row in one transaction, so a failed self-join cannot orphan the
// session.
func (r *GormRepo) CreateSessionWithCreator(ctx context.Context, s *models.Session) (*models.SessionUser, error) {
	member := &models.SessionUser{UserID: s.CreatedBy}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		member.SessionID = s.ID
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}

	r.publish([]feed.Event{
		{Table: models.TableSessions, Type: feed.Insert, New: *s},
		{Table: models.TableSessionUsers, Type: feed.Insert, New: *member},
	})
	return member, nil
}

func (r *GormRepo) MembershipForUser(ctx context.Context, userID uuid.UUID) (*models.SessionUser, error) {
	var m models.SessionUser
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *GormRepo) MembershipCount(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.SessionUser{}).
		Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

// AddMember inserts a membership row unless the session already holds
// capacity members. The parent session row is locked for the duration of the
// transaction, so two racing joins serialize: the second one counts the first
// one's committed row and cannot slip under the limit.
func (r *GormRepo) AddMember(ctx context.Context, sessionID, userID uuid.UUID, capacity int64) (*models.SessionUser, bool, error) {
	member := &models.SessionUser{SessionID: sessionID, UserID: userID}
	full := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := lockForUpdate(tx).Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.SessionUser{}).
			Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		if n >= capacity {
			full = true
			return nil
		}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, false, err
	}
	if full {
		return nil, true, nil
	}

	r.publish([]feed.Event{
		{Table: models.TableSessionUsers, Type: feed.Insert, New: *member},
	})
	return member, false, nil
}

func (r *GormRepo) RemoveMember(ctx context.Context, sessionID, userID uuid.UUID) error {
	var m models.SessionUser
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).
			First(&m).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		return err
	}

	r.publish([]feed.Event{
		{Table: models.TableSessionUsers, Type: feed.Delete, Old: m},
	})
	return nil
}

// TeardownSession deletes the session cart, every membership row and the
// session itself in one transaction. The original system issued three
// independent deletes and could strand rows halfway; here either all of it
// goes or none of it does.
func (r *GormRepo) TeardownSession(ctx context.Context, sessionID uuid.UUID) error {
	var (
		session models.Session
		members []models.SessionUser
		items   []models.SessionCartItem
	)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Find(&items).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Find(&members).Error; err != nil {
			return err
		}

		if err := tx.Where("session_id = ?", sessionID).
			Delete(&models.SessionCartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).
			Delete(&models.SessionUser{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
	if err != nil {
		return err
	}

	events := make([]feed.Event, 0, len(items)+len(members)+1)
	for _, it := range items {
		events = append(events, feed.Event{Table: models.TableSessionCartItems, Type: feed.Delete, Old: it})
	}
	// The creator's membership row goes last among members so observers see
	// ordinary leaves before the teardown signal.
	for _, m := range members {
		if m.UserID == session.CreatedBy {
			continue
		}
		events = append(events, feed.Event{Table: models.TableSessionUsers, Type: feed.Delete, Old: m})
	}
	for _, m := range members {
		if m.UserID == session.CreatedBy {
			events = append(events, feed.Event{Table: models.TableSessionUsers, Type: feed.Delete, Old: m})
		}
	}
	events = append(events, feed.Event{Table: models.TableSessions, Type: feed.Delete, Old: session})
	r.publish(events)
	return nil
}

// Participant is a membership row joined with the member's display identity.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	Email    string    `json:"email"`
}

func (r *GormRepo) Participants(ctx context.Context, sessionID uuid.UUID) ([]Participant, error) {
	var out []Participant
	err := r.DB.WithContext(ctx).
		Table("session_users").
		Select("session_users.id, session_users.user_id, session_users.joined_at, profiles.email").
		Joins("LEFT JOIN profiles ON profiles.id = session_users.user_id").
		Where("session_users.session_id = ?", sessionID).
		Order("session_users.joined_at").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
