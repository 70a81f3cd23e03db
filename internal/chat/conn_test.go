package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConn_EnqueueNeverBlocks(t *testing.T) {
	c := NewConn(Participant{}, 2)
	require.True(t, c.enqueue([]byte("1")))
	require.True(t, c.enqueue([]byte("2")))
	require.False(t, c.enqueue([]byte("3")))

	<-c.Outbound()
	require.True(t, c.enqueue([]byte("3")))
}

func TestConn_Close(t *testing.T) {
	c := NewConn(Participant{}, 4)
	require.Equal(t, StateConnected, c.State())

	c.Close()
	c.Close()
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel still open")
	}
	require.False(t, c.enqueue([]byte("late")))
}

func TestConnState_String(t *testing.T) {
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "joined", StateJoined.String())
	require.Equal(t, "closed", StateClosed.String())
}
