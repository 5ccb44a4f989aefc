package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/models"
)

func TestCartService_AddPersonalItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	item, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{
		ItemID: "dress-01", Name: "Silk Wrap Dress", Price: 289, Image: "/dress-01.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), item.Quantity)

	items, err := env.Carts.PersonalItems(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dress-01", items[0].ItemID)
	assert.Equal(t, uint(1), items[0].Quantity)
}

func TestCartService_AddExistingItemIncrements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	in := ItemInput{ItemID: "dress-01", Name: "Silk Wrap Dress", Price: 289}
	_, err := env.Carts.AddPersonalItem(ctx, user, in)
	require.NoError(t, err)

	item, err := env.Carts.AddPersonalItem(ctx, user, in)
	require.NoError(t, err)
	assert.Equal(t, uint(2), item.Quantity)

	items, err := env.Carts.PersonalItems(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1, "no duplicate row")
}

func TestCartService_AddItemRequiresID(t *testing.T) {
	env := newTestEnv(t)
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(context.Background(), user, ItemInput{Name: "nameless"})
	assert.ErrorIs(t, err, ErrCartWriteFailed)
}

func TestCartService_UpdateQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)

	item, removed, err := env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", 2)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, uint(3), item.Quantity)

	item, removed, err = env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", -1)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, uint(2), item.Quantity)
}

func TestCartService_ConcurrentIncrementsAllLand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items, err := env.Carts.PersonalItems(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint(1+workers), items[0].Quantity, "no increment lost to a stale read")
}

func TestCartService_DecrementToZeroRemovesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)
	_, _, err = env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", 1)
	require.NoError(t, err)

	_, removed, err := env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", -2)
	require.NoError(t, err)
	assert.True(t, removed)

	items, err := env.Carts.PersonalItems(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, items, "zero-quantity rows do not persist")

	// Without re-adding, further updates target a missing row.
	_, _, err = env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCartService_DecrementClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)

	_, removed, err := env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", -10)
	require.NoError(t, err)
	assert.True(t, removed, "large negative delta clamps to zero and removes")
}

func TestCartService_UpdateMissingItem(t *testing.T) {
	env := newTestEnv(t)
	user := env.createProfile(t, "shopper@example.com")

	_, _, err := env.Carts.UpdatePersonalQuantity(context.Background(), user, "ghost", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCartService_RemoveItemIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)

	require.NoError(t, env.Carts.RemovePersonalItem(ctx, user, "tee-01"))
	require.NoError(t, env.Carts.RemovePersonalItem(ctx, user, "tee-01"), "second remove is a no-op")

	items, err := env.Carts.PersonalItems(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCartService_SessionScopeMirrorsPersonal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	_, err = env.Carts.AddSessionItem(ctx, session.ID, ItemInput{ItemID: "coat-01", Name: "Wool Coat", Price: 480})
	require.NoError(t, err)
	item, err := env.Carts.AddSessionItem(ctx, session.ID, ItemInput{ItemID: "coat-01", Name: "Wool Coat", Price: 480})
	require.NoError(t, err)
	assert.Equal(t, uint(2), item.Quantity)

	updated, removed, err := env.Carts.UpdateSessionQuantity(ctx, session.ID, "coat-01", -1)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, uint(1), updated.Quantity)

	_, removed, err = env.Carts.UpdateSessionQuantity(ctx, session.ID, "coat-01", -1)
	require.NoError(t, err)
	assert.True(t, removed)

	_, _, err = env.Carts.UpdateSessionQuantity(ctx, session.ID, "coat-01", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCartService_ScopesAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.createProfile(t, "creator@example.com")
	other := env.createProfile(t, "other@example.com")

	session, err := env.Sessions.CreateOrResumeSession(ctx, creator)
	require.NoError(t, err)

	_, err = env.Carts.AddPersonalItem(ctx, creator, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)
	_, err = env.Carts.AddSessionItem(ctx, session.ID, ItemInput{ItemID: "coat-01", Name: "Wool Coat", Price: 480})
	require.NoError(t, err)

	personal, err := env.Carts.PersonalItems(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, personal, "another user's personal cart stays empty")

	items, err := env.Carts.SessionItems(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "coat-01", items[0].ItemID)
}

func TestCartService_ChangeEventsPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createProfile(t, "shopper@example.com")

	sub := env.Feed.Subscribe(models.TablePersonalCartItems, nil, feed.Filter{
		Column: "user_id", Equals: user.String(),
	})
	defer sub.Unsubscribe()

	_, err := env.Carts.AddPersonalItem(ctx, user, ItemInput{ItemID: "tee-01", Name: "Tee", Price: 35})
	require.NoError(t, err)
	assert.Equal(t, feed.Insert, recvCartEvent(t, sub.C).Type)

	_, _, err = env.Carts.UpdatePersonalQuantity(ctx, user, "tee-01", 1)
	require.NoError(t, err)
	assert.Equal(t, feed.Update, recvCartEvent(t, sub.C).Type)

	require.NoError(t, env.Carts.RemovePersonalItem(ctx, user, "tee-01"))
	assert.Equal(t, feed.Delete, recvCartEvent(t, sub.C).Type)
}

func recvCartEvent(t *testing.T, ch <-chan feed.Event) feed.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cart event")
		return feed.Event{}
	}
}
