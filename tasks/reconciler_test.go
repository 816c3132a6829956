package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type countingStore struct {
	calls atomic.Int32
	fixed int
	err   error
}

func (s *countingStore) ReconcileUnreadCounters(context.Context) (int, error) {
	s.calls.Add(1)
	return s.fixed, s.err
}

func TestReconcileOnceReportsRepairs(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	fixed := ReconcileOnce(context.Background(), &countingStore{fixed: 2})
	assert.Equal(t, 2, fixed)
	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, 2, entry.Data["fixed"])
	}
}

func TestReconcileOnceLogsErrors(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	fixed := ReconcileOnce(context.Background(), &countingStore{err: errors.New("boom")})
	assert.Equal(t, 0, fixed)
	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.ErrorLevel, entry.Level)
		assert.Contains(t, entry.Message, "boom")
	}
}

func TestReconcileRunsUntilCanceled(t *testing.T) {
	store := &countingStore{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ReconcileUnreadCounters(ctx, store, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconcileDisabled(t *testing.T) {
	store := &countingStore{}
	ReconcileUnreadCounters(context.Background(), store, 0)
	assert.Zero(t, store.calls.Load())
}
