package chat

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrument_RecordsStoreLatency(t *testing.T) {
	store := Instrument(NewMemoryRepository())

	c := newConversation(alice, bob, time.Now())
	require.NoError(t, store.InsertConversation(t.Context(), c))
	_, err := store.GetConversation(t.Context(), c.ID)
	require.NoError(t, err)
	require.NoError(t, store.Ping(t.Context()))

	// One series per store operation seen so far.
	require.GreaterOrEqual(t, testutil.CollectAndCount(storeLatency, "chat_store_latency_seconds"), 2)
}
