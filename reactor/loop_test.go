package reactor

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopDispatchesReadableSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server, err := ln.Accept()
	require.NoError(t, err)
	defer server.Close()

	fd, err := fdOf(server)
	require.NoError(t, err)

	var got atomic.Int32
	done := make(chan struct{}, 1)
	loop, err := NewLoop(func(f int, mask Mask) {
		if f == fd && mask&Readable != 0 {
			got.Add(1)
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, nil, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	defer loop.Close()

	require.NoError(t, loop.Add(fd, Readable))

	go func() { _ = loop.Run() }()
	defer loop.RequestStop()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readable dispatch")
	}
	require.GreaterOrEqual(t, got.Load(), int32(1))
}

func TestLoopMaintenanceTickRunsOnEmptyPoll(t *testing.T) {
	var ticks atomic.Int32
	loop, err := NewLoop(func(int, Mask) {}, func() {
		ticks.Add(1)
	}, 10*time.Millisecond, time.Hour)
	require.NoError(t, err)
	defer loop.Close()

	go func() { _ = loop.Run() }()
	defer loop.RequestStop()

	require.Eventually(t, func() bool {
		return ticks.Load() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestPostedUpdatesRunInCategoryOrder(t *testing.T) {
	loop, err := NewLoop(func(int, Mask) {}, nil, 10*time.Millisecond, time.Hour)
	require.NoError(t, err)
	defer loop.Close()

	var order []string
	ch := make(chan struct{})

	loop.PostAsyncCompletion(func() { order = append(order, "async") })
	loop.PostRouterUpdate(func() { order = append(order, "router") })
	loop.PostConfigUpdate(func() {
		order = append(order, "config")
		close(ch)
	})

	go func() { _ = loop.Run() }()
	defer loop.RequestStop()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for posted updates")
	}

	// give the loop a moment to have processed router/async in the same
	// drain as config, since all three were posted before Run started.
	require.Eventually(t, func() bool { return len(order) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"config", "router", "async"}, order)
}

func TestStopRequestReturnsFromRun(t *testing.T) {
	loop, err := NewLoop(func(int, Mask) {}, nil, 10*time.Millisecond, time.Hour)
	require.NoError(t, err)
	defer loop.Close()

	doneCh := make(chan error, 1)
	go func() { doneCh <- loop.Run() }()

	loop.RequestStop()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after RequestStop")
	}
}
