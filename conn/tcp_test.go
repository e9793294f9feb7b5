package conn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPConnectionReadWriteRoundTrips(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	client := NewTCPConnection(clientSide)
	defer client.Close()

	go func() {
		buf := make([]byte, 5)
		_, _ = serverSide.Read(buf)
		_, _ = serverSide.Write(buf)
	}()

	n, err := client.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	_, err = client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestTCPConnectionCloseIsIdempotent(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	client := NewTCPConnection(clientSide)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	select {
	case <-client.Done():
	default:
		t.Fatal("expected Done() to be closed after Close()")
	}
}
