package transport

import (
	"net"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoService struct{}

func (echoService) Echo(arg int, reply *int) error {
	*reply = arg
	return nil
}

func startEcho(t *testing.T) (string, func()) {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("Echo", echoService{}))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()
	return listener.Addr().String(), func() { listener.Close() }
}

func TestCallDialsAndCaches(t *testing.T) {
	addr, stop := startEcho(t)
	defer stop()

	c := NewStubCache(time.Second)
	c.SetAddress("alice", addr)

	var reply int
	require.NoError(t, c.Call("alice", "Echo.Echo", 42, &reply))
	assert.Equal(t, 42, reply)

	c.mu.Lock()
	_, cached := c.clients["alice"]
	c.mu.Unlock()
	assert.True(t, cached)
}

func TestCallUnknownAddressFails(t *testing.T) {
	c := NewStubCache(time.Second)
	var reply int
	err := c.Call("bob", "Echo.Echo", 1, &reply)
	assert.Error(t, err)
}

func TestSetAddressChangeDropsCachedClient(t *testing.T) {
	addr1, stop1 := startEcho(t)
	defer stop1()
	addr2, stop2 := startEcho(t)
	defer stop2()

	c := NewStubCache(time.Second)
	c.SetAddress("alice", addr1)
	var reply int
	require.NoError(t, c.Call("alice", "Echo.Echo", 1, &reply))

	c.SetAddress("alice", addr2)
	c.mu.Lock()
	_, cached := c.clients["alice"]
	c.mu.Unlock()
	assert.False(t, cached)

	require.NoError(t, c.Call("alice", "Echo.Echo", 2, &reply))
	assert.Equal(t, 2, reply)
}

func TestCallTimesOutAgainstUnresponsiveServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		// accept but never serve: the call will hang until the cache's
		// own timeout fires.
		_ = conn
	}()

	c := NewStubCache(50 * time.Millisecond)
	c.SetAddress("carol", listener.Addr().String())

	var reply int
	err = c.Call("carol", "Echo.Echo", 1, &reply)
	assert.Error(t, err)
}
