package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/models"
	"github.com/atelier-shop/backend/internal/repo"
)

// MaxSessionUsers caps concurrent members per session, creator included.
const MaxSessionUsers = 5

const codeRetries = 5

type SessionService struct {
	Repo  *repo.GormRepo
	State *ClientState
}

// Current returns the caller's local session state.
func (s *SessionService) Current(userID uuid.UUID) (*models.Session, bool) {
	sess, ok := s.State.Get(userID)
	if !ok {
		return nil, false
	}
	return &sess, true
}

// CreateOrResumeSession resumes the session the user already created, or
// creates a fresh one with a unique 6-character code and the creator's own
// membership row.
func (s *SessionService) CreateOrResumeSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	if _, ok := s.State.Get(userID); ok {
		return nil, ErrAlreadyInSession
	}

	existing, err := s.Repo.SessionByCreator(ctx, userID)
	if err == nil {
		s.State.Set(userID, *existing)
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup existing session: %w: %w", ErrSessionCreationFailed, err)
	}

	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w: %w", ErrSessionCreationFailed, err)
		}
		if _, err := s.Repo.SessionByCode(ctx, code); err == nil {
			continue // collision, try again
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("check code: %w: %w", ErrSessionCreationFailed, err)
		}

		session := &models.Session{Code: code, CreatedBy: userID}
		if _, err := s.Repo.CreateSessionWithCreator(ctx, session); err != nil {
			// The unique index can still reject a code that raced past the
			// pre-check; retry those, fail the rest.
			if attempt < codeRetries-1 {
				continue
			}
			return nil, fmt.Errorf("create session: %w: %w", ErrSessionCreationFailed, err)
		}

		s.State.Set(userID, *session)
		return session, nil
	}
	return nil, ErrSessionCreationFailed
}

// ResumeOnLoad restores local session state on client attach: first a session
// the user created, otherwise one they joined. Returns nil when neither
// exists.
func (s *SessionService) ResumeOnLoad(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	if sess, ok := s.State.Get(userID); ok {
		return &sess, nil
	}

	created, err := s.Repo.SessionByCreator(ctx, userID)
	if err == nil {
		s.State.Set(userID, *created)
		return created, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	membership, err := s.Repo.MembershipForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	joined, err := s.Repo.SessionByID(ctx, membership.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.State.Set(userID, *joined)
	return joined, nil
}

func (s *SessionService) JoinSession(ctx context.Context, userID uuid.UUID, code string) (*models.Session, error) {
	if _, ok := s.State.Get(userID); ok {
		return nil, ErrAlreadyInSession
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return nil, ErrSessionNotFound
	}

	session, err := s.Repo.SessionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w: %w", ErrSessionJoinFailed, err)
	}

	if session.CreatedBy == userID {
		return nil, ErrSelfJoinForbidden
	}

	_, full, err := s.Repo.AddMember(ctx, session.ID, userID, MaxSessionUsers)
	if err != nil {
		return nil, fmt.Errorf("insert membership: %w: %w", ErrSessionJoinFailed, err)
	}
	if full {
		return nil, ErrSessionFull
	}

	s.State.Set(userID, *session)
	return session, nil
}

// Disconnect leaves the session. A creator tears the whole session down; a
// participant removes only their own membership row.
func (s *SessionService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	session, ok := s.State.Get(userID)
	if !ok {
		return nil
	}

	if session.CreatedBy == userID {
		if err := s.Repo.TeardownSession(ctx, session.ID); err != nil {
			return fmt.Errorf("teardown: %w: %w", ErrSessionTeardownFailed, err)
		}
		s.State.ClearSession(session.ID)
		return nil
	}

	if err := s.Repo.RemoveMember(ctx, session.ID, userID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("leave session: %w: %w", ErrSessionTeardownFailed, err)
		}
	}
	s.State.Clear(userID)
	return nil
}

func (s *SessionService) Participants(ctx context.Context, userID uuid.UUID) ([]repo.Participant, error) {
	session, ok := s.State.Get(userID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Repo.Participants(ctx, session.ID)
}
