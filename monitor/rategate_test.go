package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateGateMutualExclusion(t *testing.T) {
	gate := NewRateGate()

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gate.WithPermit(context.Background(), "acme", func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight),
		"only one query may hold the permit at a time")
}

func TestRateGateIndependentTenants(t *testing.T) {
	gate := NewRateGate()

	release := make(chan struct{})
	acquired := make(chan struct{})

	go func() {
		_ = gate.WithPermit(context.Background(), "tenant-a", func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	// A different tenant is not blocked by tenant-a's in-flight query
	done := make(chan error, 1)
	go func() {
		done <- gate.WithPermit(context.Background(), "tenant-b", func() error { return nil })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tenant-b blocked behind tenant-a's permit")
	}
	close(release)
}

func TestRateGateRejectPolicy(t *testing.T) {
	gate := NewRateGate(WithWaitPolicy(WaitReject))

	release := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = gate.WithPermit(context.Background(), "acme", func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	err := gate.WithPermit(context.Background(), "acme", func() error {
		t.Fatal("fn must not run when the permit is held")
		return nil
	})
	require.Error(t, err)

	busyErr, ok := AsBusyError(err)
	require.True(t, ok, "expected a BusyError, got %T", err)
	assert.Equal(t, "acme", busyErr.Tenant)

	close(release)
}

func TestRateGateTimeoutPolicy(t *testing.T) {
	gate := NewRateGate(WithWaitPolicy(WaitTimeout), WithMaxWait(20*time.Millisecond))

	release := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = gate.WithPermit(context.Background(), "acme", func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	err := gate.WithPermit(context.Background(), "acme", func() error { return nil })
	require.Error(t, err)

	busyErr, ok := AsBusyError(err)
	require.True(t, ok)
	assert.Greater(t, busyErr.Waited, time.Duration(0))

	close(release)
}

func TestRateGateBlockPolicyHonorsCancellation(t *testing.T) {
	gate := NewRateGate()

	release := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = gate.WithPermit(context.Background(), "acme", func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gate.WithPermit(ctx, "acme", func() error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	close(release)
}

func TestRateGateReleasedAfterError(t *testing.T) {
	gate := NewRateGate()

	err := gate.WithPermit(context.Background(), "acme", func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// The permit must be free again
	assert.False(t, gate.InFlight("acme"))
	err = gate.WithPermit(context.Background(), "acme", func() error { return nil })
	assert.NoError(t, err)

	assert.False(t, gate.LastReleased("acme").IsZero())
}
