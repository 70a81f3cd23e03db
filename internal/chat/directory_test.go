package chat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mentor-chat/internal/testutil"
)

func TestDirectory_GetOrCreate(t *testing.T) {
	f := newFixture(t, NewMemoryRepository(), RouterConfig{})

	t.Run("creates once and is order independent", func(t *testing.T) {
		req := require.New(t)
		first, err := f.directory.GetOrCreate(t.Context(), alice, bob)
		req.NoError(err)
		req.Nil(first.LastMessage)

		second, err := f.directory.GetOrCreate(t.Context(), bob, alice)
		req.NoError(err)
		req.Equal(first.ID, second.ID)
	})

	t.Run("same identity with another role is a different participant", func(t *testing.T) {
		req := require.New(t)
		asInitiator, err := f.directory.GetOrCreate(t.Context(), alice, bob)
		req.NoError(err)
		asResponder, err := f.directory.GetOrCreate(t.Context(), alice, Participant{Identity: "bob", Role: RoleInitiator})
		req.NoError(err)
		req.NotEqual(asInitiator.ID, asResponder.ID)
	})

	t.Run("rejects invalid participants", func(t *testing.T) {
		var validation *ValidationError
		_, err := f.directory.GetOrCreate(t.Context(), alice, Participant{Identity: "", Role: RoleResponder})
		require.ErrorAs(t, err, &validation)
		_, err = f.directory.GetOrCreate(t.Context(), alice, Participant{Identity: "bob", Role: "admin"})
		require.ErrorAs(t, err, &validation)
		_, err = f.directory.GetOrCreate(t.Context(), alice, Participant{Identity: "alice", Role: RoleResponder})
		require.ErrorAs(t, err, &validation)
	})
}

func TestDirectory_ConcurrentGetOrCreate(t *testing.T) {
	store := NewMemoryRepository()
	f := newFixture(t, store, RouterConfig{})

	const callers = 32
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := f.directory.GetOrCreate(t.Context(), a, b)
			require.NoError(t, err)
			ids[i] = c.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	stored, err := store.ListConversations(t.Context(), alice)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestDirectory_GetOrCreateLosesRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	d := NewDirectory(store, nil, testutil.Logger())
	winner := newConversation(alice, bob, d.timestamp())

	gomock.InOrder(
		store.EXPECT().FindConversationByPair(gomock.Any(), PairKey(alice, bob)).Return(nil, ErrNotFound),
		store.EXPECT().InsertConversation(gomock.Any(), gomock.Any()).Return(ErrConversationExists),
		store.EXPECT().FindConversationByPair(gomock.Any(), PairKey(alice, bob)).Return(winner, nil),
	)

	c, err := d.GetOrCreate(t.Context(), alice, bob)
	require.NoError(t, err)
	require.Equal(t, winner.ID, c.ID)
}

func TestDirectory_GetOrCreateStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	d := NewDirectory(store, nil, testutil.Logger())

	store.EXPECT().FindConversationByPair(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := d.GetOrCreate(t.Context(), alice, bob)
	var persist *PersistenceError
	require.ErrorAs(t, err, &persist)
}

func TestDirectory_Find(t *testing.T) {
	f := newFixture(t, NewMemoryRepository(), RouterConfig{})

	_, err := f.directory.Find(t.Context(), alice, bob)
	require.ErrorIs(t, err, ErrNotFound)

	created := f.conversation(t, alice, bob)
	found, err := f.directory.Find(t.Context(), bob, alice)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}

func TestDirectory_Append(t *testing.T) {
	f := newFixture(t, NewMemoryRepository(), RouterConfig{})
	c := f.conversation(t, alice, bob)

	t.Run("stores and moves the last message", func(t *testing.T) {
		req := require.New(t)
		m := &Message{ConversationID: c.ID, Sender: alice, Receiver: bob, Body: "hi"}
		req.NoError(f.directory.Append(t.Context(), m))
		req.NotEqual(uuid.Nil, m.ID)
		req.False(m.Timestamp.IsZero())
		req.False(m.Read)

		got, err := f.directory.Get(t.Context(), c.ID)
		req.NoError(err)
		req.NotNil(got.LastMessage)
		req.Equal(m.ID, got.LastMessage.ID)
		req.True(got.UpdatedAt.Equal(m.Timestamp))
	})

	t.Run("unknown conversation", func(t *testing.T) {
		m := &Message{ConversationID: uuid.New(), Sender: alice, Receiver: bob, Body: "hi"}
		var validation *ValidationError
		require.ErrorAs(t, f.directory.Append(t.Context(), m), &validation)
	})

	t.Run("participants must match the conversation", func(t *testing.T) {
		m := &Message{ConversationID: c.ID, Sender: alice, Receiver: carol, Body: "hi"}
		var validation *ValidationError
		require.ErrorAs(t, f.directory.Append(t.Context(), m), &validation)

		messages, err := f.store.ListMessages(t.Context(), c.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
	})

	t.Run("timestamps never go backwards", func(t *testing.T) {
		req := require.New(t)
		before, err := f.directory.Get(t.Context(), c.ID)
		req.NoError(err)

		f.directory.now = fakeClock(before.UpdatedAt.Add(-time.Hour))
		m := &Message{ConversationID: c.ID, Sender: bob, Receiver: alice, Body: "late clock"}
		req.NoError(f.directory.Append(t.Context(), m))
		req.False(m.Timestamp.Before(before.UpdatedAt))

		after, err := f.directory.Get(t.Context(), c.ID)
		req.NoError(err)
		req.Equal(m.ID, after.LastMessage.ID)
	})
}

func TestDirectory_AppendStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	d := NewDirectory(store, nil, testutil.Logger())
	c := newConversation(alice, bob, d.timestamp())

	store.EXPECT().GetConversation(gomock.Any(), c.ID).Return(c, nil)
	store.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	err := d.Append(t.Context(), &Message{ConversationID: c.ID, Sender: alice, Receiver: bob, Body: "hi"})
	var persist *PersistenceError
	require.ErrorAs(t, err, &persist)
	require.Equal(t, CodePersistence, errorCode(err))
}

func TestDirectory_ListFor(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := NewMockProfileResolver(ctrl)
	store := NewMemoryRepository()
	d := NewDirectory(store, profiles, testutil.Logger())
	d.now = fakeClock(d.now())

	withBob, err := d.GetOrCreate(t.Context(), alice, bob)
	require.NoError(t, err)
	withCarol, err := d.GetOrCreate(t.Context(), alice, carol)
	require.NoError(t, err)
	_, err = d.GetOrCreate(t.Context(), bob, Participant{Identity: "dave", Role: RoleInitiator})
	require.NoError(t, err)

	// A message makes the older conversation the most recent one.
	require.NoError(t, d.Append(t.Context(), &Message{ConversationID: withBob.ID, Sender: alice, Receiver: bob, Body: "ping"}))

	profiles.EXPECT().ResolveProfile(gomock.Any(), "bob", RoleResponder).
		Return(&Profile{Name: "Bob", Department: "Physics"}, nil)
	profiles.EXPECT().ResolveProfile(gomock.Any(), "carol", RoleResponder).
		Return(nil, errors.New("directory timeout"))

	summaries, err := d.ListFor(t.Context(), "alice", RoleInitiator)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	require.Equal(t, withBob.ID, summaries[0].ID)
	require.Equal(t, bob, summaries[0].OtherParticipant)
	require.Equal(t, &Profile{Name: "Bob", Department: "Physics"}, summaries[0].Profile)
	require.NotNil(t, summaries[0].LastMessage)
	require.Equal(t, "ping", summaries[0].LastMessage.Body)

	require.Equal(t, withCarol.ID, summaries[1].ID)
	require.Equal(t, carol, summaries[1].OtherParticipant)
	require.Nil(t, summaries[1].Profile)
	require.Nil(t, summaries[1].LastMessage)
}

func TestDirectory_ListForNobody(t *testing.T) {
	f := newFixture(t, NewMemoryRepository(), RouterConfig{})
	summaries, err := f.directory.ListFor(t.Context(), "alice", RoleInitiator)
	require.NoError(t, err)
	require.Empty(t, summaries)

	_, err = f.directory.ListFor(t.Context(), "alice", "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}
