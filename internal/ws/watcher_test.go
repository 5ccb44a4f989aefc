package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
	"github.com/atelier-shop/backend/internal/repo"
	"github.com/atelier-shop/backend/internal/service"
)

type watcherEnv struct {
	DB       *gorm.DB
	Feed     *feed.Feed
	Repo     *repo.GormRepo
	Sessions *service.SessionService
	Carts    *service.CartService
}

func newWatcherEnv(t *testing.T) *watcherEnv {
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
	))

	f := feed.New()
	r := &repo.GormRepo{DB: db, Feed: f}

	return &watcherEnv{
		DB:       db,
		Feed:     f,
		Repo:     r,
		Sessions: &service.SessionService{Repo: r, State: service.NewClientState()},
		Carts:    &service.CartService{Repo: r},
	}
}

func (env *watcherEnv) createProfile(t *testing.T, email string) uuid.UUID {
	t.Helper()
	p := models.Profile{ID: uuid.New(), Email: email}
	require.NoError(t, env.DB.Create(&p).Error)
	return p.ID
}

// startWatcher runs a watcher for userID and blocks until its initial
// personal-cart snapshot arrives, so feed subscriptions are in place before
// the test publishes anything. Messages pushed before that snapshot stay
// buffered in the sink for later expects.
func (env *watcherEnv) startWatcher(t *testing.T, userID uuid.UUID) *captureSink {
	t.Helper()

	sink := newCaptureSink()
	w := &Watcher{
		UserID:   userID,
		Sessions: env.Sessions,
		Carts:    env.Carts,
		Repo:     env.Repo,
		Feed:     env.Feed,
		Sink:     sink,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	sink.expect(t, MsgPersonalCart)
	return sink
}

// captureSink records watcher pushes. expect returns the next message of a
// given type; messages of other types are held in a pending buffer so a
// barrier on one type does not swallow the rest. Only the test goroutine
// touches pending.
type captureSink struct {
	msgs    chan Message
	pending []Message
}

func newCaptureSink() *captureSink {
	return &captureSink{msgs: make(chan Message, 128)}
}

func (s *captureSink) Push(m Message) { s.msgs <- m }

func (s *captureSink) expect(t *testing.T, msgType string) Message {
	t.Helper()
	for i, m := range s.pending {
		if m.Type == msgType {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return m
		}
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-s.msgs:
			if m.Type == msgType {
				return m
			}
			s.pending = append(s.pending, m)
		case <-deadline:
			t.Fatalf("timed out waiting for %q message", msgType)
			return Message{}
		}
	}
}

func (s *captureSink) expectNone(t *testing.T, msgType string) {
	t.Helper()
	for _, m := range s.pending {
		if m.Type == msgType {
			t.Fatalf("unexpected buffered %q message: %+v", msgType, m)
		}
	}
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case m := <-s.msgs:
			if m.Type == msgType {
				t.Fatalf("unexpected %q message: %+v", msgType, m)
			}
			s.pending = append(s.pending, m)
		case <-deadline:
			return
		}
	}
}

// decodeData round-trips a message payload through JSON into dst, the same
// shape a browser client would see.
func decodeData(t *testing.T, m Message, dst any) {
	t.Helper()
	raw, err := json.Marshal(m.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestWatcher_InitialPersonalCartSnapshot(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, service.ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)

	sink := newCaptureSink()
	w := &Watcher{
		UserID:   user,
		Sessions: env.Sessions,
		Carts:    env.Carts,
		Repo:     env.Repo,
		Feed:     env.Feed,
		Sink:     sink,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	m := sink.expect(t, MsgPersonalCart)
	var items []models.PersonalCartItem
	decodeData(t, m, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "tee-01", items[0].ItemID)
}

func TestWatcher_ResumeAttachesActiveSession(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	sink := env.startWatcher(t, creator)

	m := sink.expect(t, MsgSession)
	var got models.Session
	decodeData(t, m, &got)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Code, got.Code)

	p := sink.expect(t, MsgParticipants)
	var participants []repo.Participant
	decodeData(t, p, &participants)
	require.Len(t, participants, 1)
	assert.Equal(t, creator, participants[0].UserID)

	sink.expect(t, MsgSessionCart)
}

func TestWatcher_MemberJoinPushesParticipants(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	joiner := env.createProfile(t, "joiner@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	sink := env.startWatcher(t, creator)
	// Drain the attach-time snapshot before acting.
	sink.expect(t, MsgSession)
	sink.expect(t, MsgParticipants)
	sink.expect(t, MsgSessionCart)

	_, err = env.Sessions.JoinSession(ctx, joiner, session.Code)
	require.NoError(t, err)

	notice := sink.expect(t, MsgNotice)
	assert.Equal(t, "A user joined the session", notice.Notice)

	m := sink.expect(t, MsgParticipants)
	var participants []repo.Participant
	decodeData(t, m, &participants)
	require.Len(t, participants, 2)
}

func TestWatcher_SessionCartChangePushesSnapshot(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	sink := env.startWatcher(t, creator)
	sink.expect(t, MsgSessionCart) // attach-time snapshot, empty

	_, err = env.Carts.AddSessionItem(ctx, session.ID, service.ItemInput{ItemID: "coat-01", Name: "Wool Coat", Price: 480})
	require.NoError(t, err)

	m := sink.expect(t, MsgSessionCart)
	var items []models.SessionCartItem
	decodeData(t, m, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "coat-01", items[0].ItemID)
	assert.Equal(t, uint(1), items[0].Quantity)
}

func TestWatcher_CreatorDisconnectEndsSessionForParticipant(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	joiner := env.createProfile(t, "joiner@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.Sessions.JoinSession(ctx, joiner, session.Code)
	require.NoError(t, err)

	sink := env.startWatcher(t, joiner)
	sink.expect(t, MsgSession)

	require.NoError(t, env.Sessions.Disconnect(ctx, creator))

	m := sink.expect(t, MsgSessionEnded)
	assert.Equal(t, "Session creator disconnected. All users have been disconnected.", m.Notice)

	_, active := env.Sessions.Current(joiner)
	assert.False(t, active, "joiner's local session state is cleared")
}

func TestWatcher_ParticipantLeaveNotifiesCreator(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	joiner := env.createProfile(t, "joiner@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.Sessions.JoinSession(ctx, joiner, session.Code)
	require.NoError(t, err)

	sink := env.startWatcher(t, creator)
	sink.expect(t, MsgSession)
	sink.expect(t, MsgParticipants) // attach-time snapshot with both members

	require.NoError(t, env.Sessions.Disconnect(ctx, joiner))

	notice := sink.expect(t, MsgNotice)
	assert.Equal(t, "User joiner@example.com has disconnected", notice.Notice)

	m := sink.expect(t, MsgParticipants)
	var participants []repo.Participant
	decodeData(t, m, &participants)
	require.Len(t, participants, 1)
	assert.Equal(t, creator, participants[0].UserID)
}

func TestWatcher_SelfLeaveFromAnotherConnection(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	joiner := env.createProfile(t, "joiner@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.Sessions.JoinSession(ctx, joiner, session.Code)
	require.NoError(t, err)

	sink := env.startWatcher(t, joiner)
	sink.expect(t, MsgSession)

	// The joiner leaves via another tab; the session itself survives.
	require.NoError(t, env.Sessions.Disconnect(ctx, joiner))

	m := sink.expect(t, MsgSession)
	assert.Nil(t, m.Data, "session cleared without a teardown notice")
	sink.expectNone(t, MsgSessionEnded)
}

func TestWatcher_PersonalCartScopedToUser(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")
	other := env.createProfile(t, "other@example.com")

	sink := env.startWatcher(t, user)

	_, err := env.Carts.AddPersonalItem(ctx, other, service.ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)
	sink.expectNone(t, MsgPersonalCart)

	_, err = env.Carts.AddPersonalItem(ctx, user, service.ItemInput{ItemID: "dress-01", Name: "Dress", Price: 289})
	require.NoError(t, err)

	m := sink.expect(t, MsgPersonalCart)
	var items []models.PersonalCartItem
	decodeData(t, m, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "dress-01", items[0].ItemID)
}

func TestWatcher_JoinFromAnotherConnectionAttaches(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	joiner := env.createProfile(t, "joiner@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	sink := env.startWatcher(t, joiner)

	_, err = env.Sessions.JoinSession(ctx, joiner, session.Code)
	require.NoError(t, err)

	m := sink.expect(t, MsgSession)
	var got models.Session
	decodeData(t, m, &got)
	assert.Equal(t, session.ID, got.ID)
}
