// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package serial

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// blockingRW never returns data until told to, simulating an idle modem.
type blockingRW struct {
	mu      sync.Mutex
	queue   []byte
	closed  bool
}

func (b *blockingRW) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return 0, nil
	}
	n := copy(p, b.queue)
	b.queue = b.queue[n:]
	return n, nil
}

func (b *blockingRW) Write(p []byte) (int, error) { return len(p), nil }
func (b *blockingRW) Close() error                { b.closed = true; return nil }

func (b *blockingRW) push(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, data...)
}

func TestRead1ReturnsQueuedByte(t *testing.T) {
	rw := &blockingRW{}
	rw.push([]byte("X"))
	p := newPort(rw, time.Second)
	b, err := p.Read1()
	assert.Nil(t, err)
	assert.Equal(t, []byte("X"), b)
}

func TestRead1TimesOutWithNoData(t *testing.T) {
	rw := &blockingRW{}
	p := newPort(rw, 120*time.Millisecond)
	start := time.Now()
	b, err := p.Read1()
	assert.Nil(t, err)
	assert.Nil(t, b)
	assert.True(t, time.Since(start) >= 100*time.Millisecond)
}

func TestCancelReadReturnsPromptly(t *testing.T) {
	rw := &blockingRW{}
	p := newPort(rw, 10*time.Second)
	done := make(chan struct{})
	go func() {
		b, err := p.Read1()
		assert.Nil(t, err)
		assert.Nil(t, b)
		close(done)
	}()
	// give the read loop a moment to start polling
	time.Sleep(20 * time.Millisecond)
	p.CancelRead()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CancelRead did not unblock Read1")
	}
}

func TestCancelReadIsNonBlocking(t *testing.T) {
	rw := &blockingRW{}
	p := newPort(rw, time.Second)
	// no Read1 in flight - must not block
	p.CancelRead()
	p.CancelRead()
}

func TestCloseIsIdempotent(t *testing.T) {
	rw := &blockingRW{}
	p := newPort(rw, time.Second)
	assert.Nil(t, p.Close())
	assert.Nil(t, p.Close())
	assert.True(t, rw.closed)

	_, err := p.Read1()
	assert.Equal(t, ErrClosed, err)
}
