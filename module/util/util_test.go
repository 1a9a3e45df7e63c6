package util_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onflow/flow-rangesync/module/util"
)

func TestCheckClosed(t *testing.T) {
	done := make(chan struct{})
	assert.False(t, util.CheckClosed(done))
	close(done)
	assert.True(t, util.CheckClosed(done))
}

func TestWaitClosed(t *testing.T) {
	t.Run("channel closed returns nil", func(t *testing.T) {
		ch := make(chan struct{})
		close(ch)
		assert.NoError(t, util.WaitClosed(context.Background(), ch))
	})

	t.Run("context cancelled returns error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, util.WaitClosed(ctx, make(chan struct{})), context.Canceled)
	})

	t.Run("both closed returns nil", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ch := make(chan struct{})
		close(ch)
		assert.NoError(t, util.WaitClosed(ctx, ch))
	})
}

func TestWaitError(t *testing.T) {
	testErr := errors.New("test error")

	t.Run("error received", func(t *testing.T) {
		errChan := make(chan error, 1)
		errChan <- testErr
		assert.ErrorIs(t, util.WaitError(errChan, make(chan struct{})), testErr)
	})

	t.Run("done and error both ready returns error", func(t *testing.T) {
		errChan := make(chan error, 1)
		done := make(chan struct{})
		errChan <- testErr
		close(done)
		assert.ErrorIs(t, util.WaitError(errChan, done), testErr)
	})

	t.Run("done without error returns nil", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		assert.NoError(t, util.WaitError(make(chan error), done))
	})
}

func TestAllClosed(t *testing.T) {
	a := make(chan struct{})
	b := make(chan struct{})
	all := util.AllClosed(a, b)

	close(a)
	assert.False(t, util.CheckClosed(all))
	close(b)

	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("all channel was not closed")
	}
}
