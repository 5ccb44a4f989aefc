package ws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
	"github.com/atelier-shop/backend/internal/repo"
	"github.com/atelier-shop/backend/internal/service"
)

// Message types pushed to the client.
const (
	MsgSession      = "session"
	MsgSessionEnded = "session_ended"
	MsgParticipants = "participants"
	MsgSessionCart  = "session_cart"
	MsgPersonalCart = "personal_cart"
	MsgNotice       = "notice"
)

// CartReconciler rebuilds a client's cart view after a change event. The
// default strategy is a full re-fetch of the scope; an incremental-merge
// strategy can be substituted without touching the watcher.
type CartReconciler interface {
	PersonalItems(ctx context.Context, userID uuid.UUID) ([]models.PersonalCartItem, error)
	SessionItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionCartItem, error)
}

// Sink receives the watcher's outbound messages. *Client implements it.
type Sink interface {
	Push(Message)
}

// Watcher owns one connected client's change-feed subscriptions and
// reconciles that client's view: personal cart always, plus membership and
// session cart while a session is active. All subscriptions are released when
// Run returns, whatever the exit path.
type Watcher struct {
	UserID   uuid.UUID
	Sessions *service.SessionService
	Carts    CartReconciler
	Repo     *repo.GormRepo
	Feed     *feed.Feed
	Sink     Sink
	Log      *slog.Logger

	session        *models.Session
	selfSub        *feed.Subscription
	personalSub    *feed.Subscription
	memberSub      *feed.Subscription
	sessionCartSub *feed.Subscription
}

func (w *Watcher) Run(ctx context.Context) {
	// Personal cart events arrive unfiltered; the watcher scopes them by user
	// id. Own-membership events drive attach/detach when this user joins or
	// leaves from another tab or device.
	w.personalSub = w.Feed.Subscribe(models.TablePersonalCartItems, nil, feed.Filter{})
	w.selfSub = w.Feed.Subscribe(models.TableSessionUsers, nil, feed.Filter{
		Column: "user_id", Equals: w.UserID.String(),
	})
	defer w.personalSub.Unsubscribe()
	defer w.selfSub.Unsubscribe()
	defer w.detach()

	if sess, err := w.Sessions.ResumeOnLoad(ctx, w.UserID); err != nil {
		w.Log.Error("resume on load", "user_id", w.UserID, "error", err)
	} else if sess != nil {
		w.attach(ctx, *sess)
	}
	w.pushPersonalCart(ctx)

	for {
		var memberC, cartC <-chan feed.Event
		if w.memberSub != nil {
			memberC = w.memberSub.C
		}
		if w.sessionCartSub != nil {
			cartC = w.sessionCartSub.C
		}

		select {
		case <-ctx.Done():
			return
		case e := <-w.personalSub.C:
			if rowColumn(e, "user_id") == w.UserID.String() {
				w.pushPersonalCart(ctx)
			}
		case e := <-w.selfSub.C:
			w.onOwnMembership(ctx, e)
		case e := <-memberC:
			w.onMembership(ctx, e)
		case <-cartC:
			w.pushSessionCart(ctx)
		}
	}
}

// onOwnMembership reacts to this user's membership rows appearing or
// vanishing, attaching or detaching the session-scoped subscriptions.
func (w *Watcher) onOwnMembership(ctx context.Context, e feed.Event) {
	switch e.Type {
	case feed.Insert:
		if w.session != nil {
			return
		}
		sid, err := uuid.Parse(rowColumn(e, "session_id"))
		if err != nil {
			return
		}
		sess, err := w.Repo.SessionByID(ctx, sid)
		if err != nil {
			w.Log.Error("load joined session", "session_id", sid, "error", err)
			return
		}
		w.attach(ctx, *sess)
	case feed.Delete:
		if w.session == nil || rowColumn(e, "session_id") != w.session.ID.String() {
			return
		}
		if w.UserID == w.session.CreatedBy {
			// Teardown notices arrive via the session-scoped subscription.
			return
		}
		// Own row removed: either we left (possibly from another
		// connection) or the creator tore the session down. Events publish
		// only after commit, so if the session row is gone this was a
		// teardown and the session-scoped subscription will deliver the
		// "session ended" notice; otherwise detach quietly.
		if _, err := w.Repo.SessionByID(ctx, w.session.ID); err != nil {
			return
		}
		w.Sessions.State.Clear(w.UserID)
		w.detach()
		w.Sink.Push(Message{Type: MsgSession, Data: nil})
	}
}

func (w *Watcher) onMembership(ctx context.Context, e feed.Event) {
	switch e.Type {
	case feed.Insert:
		w.pushParticipants(ctx)
		w.Sink.Push(Message{Type: MsgNotice, Notice: "A user joined the session"})
	case feed.Delete:
		leftUser := rowColumn(e, "user_id")
		if leftUser == w.session.CreatedBy.String() {
			w.Sessions.State.Clear(w.UserID)
			w.detach()
			w.Sink.Push(Message{Type: MsgSessionEnded,
				Notice: "Session creator disconnected. All users have been disconnected."})
			return
		}
		if w.UserID == w.session.CreatedBy {
			w.Sink.Push(Message{Type: MsgNotice, Notice: w.leaveNotice(ctx, leftUser)})
		}
		w.pushParticipants(ctx)
	case feed.Update:
		w.pushParticipants(ctx)
	}
}

func (w *Watcher) leaveNotice(ctx context.Context, leftUser string) string {
	uid, err := uuid.Parse(leftUser)
	if err != nil {
		return "A user has disconnected"
	}
	email, err := w.Repo.ProfileEmail(ctx, uid)
	if err != nil {
		return "A user has disconnected"
	}
	return fmt.Sprintf("User %s has disconnected", email)
}

func (w *Watcher) attach(ctx context.Context, sess models.Session) {
	w.session = &sess
	w.memberSub = w.Feed.Subscribe(models.TableSessionUsers, nil, feed.Filter{
		Column: "session_id", Equals: sess.ID.String(),
	})
	w.sessionCartSub = w.Feed.Subscribe(models.TableSessionCartItems, nil, feed.Filter{
		Column: "session_id", Equals: sess.ID.String(),
	})

	w.Sink.Push(Message{Type: MsgSession, Data: sess})
	w.pushParticipants(ctx)
	w.pushSessionCart(ctx)
}

func (w *Watcher) detach() {
	if w.memberSub != nil {
		w.memberSub.Unsubscribe()
		w.memberSub = nil
	}
	if w.sessionCartSub != nil {
		w.sessionCartSub.Unsubscribe()
		w.sessionCartSub = nil
	}
	w.session = nil
}

func (w *Watcher) pushParticipants(ctx context.Context) {
	if w.session == nil {
		return
	}
	participants, err := w.Repo.Participants(ctx, w.session.ID)
	if err != nil {
		w.Log.Error("fetch participants", "session_id", w.session.ID, "error", err)
		return
	}
	w.Sink.Push(Message{Type: MsgParticipants, Data: participants})
}

func (w *Watcher) pushSessionCart(ctx context.Context) {
	if w.session == nil {
		return
	}
	items, err := w.Carts.SessionItems(ctx, w.session.ID)
	if err != nil {
		w.Log.Error("fetch session cart", "session_id", w.session.ID, "error", err)
		return
	}
	w.Sink.Push(Message{Type: MsgSessionCart, Data: items})
}

func (w *Watcher) pushPersonalCart(ctx context.Context) {
	items, err := w.Carts.PersonalItems(ctx, w.UserID)
	if err != nil {
		w.Log.Error("fetch personal cart", "user_id", w.UserID, "error", err)
		return
	}
	w.Sink.Push(Message{Type: MsgPersonalCart, Data: items})
}

func rowColumn(e feed.Event, column string) string {
	for _, row := range []feed.Row{e.New, e.Old} {
		if row == nil {
			continue
		}
		if v, ok := row.FeedColumns()[column]; ok {
			return v
		}
	}
	return ""
}
