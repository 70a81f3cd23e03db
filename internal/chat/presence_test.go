package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_MultipleConnections(t *testing.T) {
	r := NewRegistry()
	c1, c2 := NewConn(Participant{}, 1), NewConn(Participant{}, 1)

	require.False(t, r.Online("alice"))
	r.Register("alice", c1)
	r.Register("alice", c2)
	r.Register("alice", c2) // idempotent

	require.ElementsMatch(t, []*Conn{c1, c2}, r.ConnectionsFor("alice"))
	require.Empty(t, r.ConnectionsFor("bob"))

	require.True(t, r.Unregister("alice", c1))
	require.False(t, r.Unregister("alice", c1))
	require.Equal(t, []*Conn{c2}, r.ConnectionsFor("alice"))

	require.True(t, r.Unregister("alice", c2))
	require.False(t, r.Online("alice"))
}

func TestRegistry_UnregisterUnknown(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Unregister("nobody", NewConn(Participant{}, 1)))

	r.Register("alice", NewConn(Participant{}, 1))
	require.False(t, r.Unregister("alice", NewConn(Participant{}, 1)))
	require.True(t, r.Online("alice"))
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	const identities, perIdentity = 8, 50

	var wg sync.WaitGroup
	kept := make([][]*Conn, identities)
	for i := 0; i < identities; i++ {
		identity := fmt.Sprintf("user-%d", i)
		for j := 0; j < perIdentity; j++ {
			c := NewConn(Participant{}, 1)
			keep := j%5 == 0
			if keep {
				kept[i] = append(kept[i], c)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Register(identity, c)
				if !keep {
					r.Unregister(identity, c)
				}
			}()
		}
	}
	wg.Wait()

	for i := 0; i < identities; i++ {
		require.ElementsMatch(t, kept[i], r.ConnectionsFor(fmt.Sprintf("user-%d", i)))
	}
}

func TestRegistry_ReRegisterAfterEmpty(t *testing.T) {
	r := NewRegistry()
	c := NewConn(Participant{}, 1)

	// Churn the same identity so Register keeps racing the entry removal.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tmp := NewConn(Participant{}, 1)
			r.Register("alice", tmp)
			r.Unregister("alice", tmp)
		}()
	}
	r.Register("alice", c)
	wg.Wait()

	require.Equal(t, []*Conn{c}, r.ConnectionsFor("alice"))
}
