package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mentor-chat/internal/testutil"
)

var (
	alice = Participant{Identity: "alice", Role: RoleInitiator}
	bob   = Participant{Identity: "bob", Role: RoleResponder}
	carol = Participant{Identity: "carol", Role: RoleResponder}
)

type fixture struct {
	store     Store
	directory *Directory
	presence  *Registry
	reads     *ReadTracker
	router    *Router
	query     *Query
}

func newFixture(t *testing.T, store Store, cfg RouterConfig) *fixture {
	t.Helper()
	logger := testutil.Logger()
	directory := NewDirectory(store, nil, logger)
	directory.now = fakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	presence := NewRegistry()
	reads := NewReadTracker(store)
	return &fixture{
		store:     store,
		directory: directory,
		presence:  presence,
		reads:     reads,
		router:    NewRouter(directory, presence, reads, logger, cfg),
		query:     NewQuery(store, directory),
	}
}

// fakeClock advances one second per reading.
func fakeClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func (f *fixture) joined(t *testing.T, p Participant) *Conn {
	t.Helper()
	c := NewConn(p, 64)
	require.NoError(t, f.router.Join(c, p.Identity))
	return c
}

func (f *fixture) conversation(t *testing.T, a, b Participant) *Conversation {
	t.Helper()
	c, err := f.directory.GetOrCreate(t.Context(), a, b)
	require.NoError(t, err)
	return c
}

type event struct {
	Type string
	Data json.RawMessage
}

// drain returns everything queued on c without waiting.
func drain(t *testing.T, c *Conn) []event {
	t.Helper()
	var events []event
	for {
		select {
		case b := <-c.Outbound():
			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			events = append(events, event{Type: env.Type, Data: env.Data})
		default:
			return events
		}
	}
}

func decodeAs[T any](t *testing.T, e event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Data, &v))
	return v
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	b, err := encode(eventType, payload)
	require.NoError(t, err)
	return b
}
