package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuffered_TrySendDropsWhenFull(t *testing.T) {
	c := NewBuffered[int](2)
	assert.True(t, c.TrySend(1))
	assert.True(t, c.TrySend(2))
	assert.False(t, c.TrySend(3))
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, <-c.Receive())
	assert.True(t, c.TrySend(4))
}

func TestBuffered_CloseIsIdempotent(t *testing.T) {
	c := NewBuffered[string](1)
	c.Send("a")
	c.Close()
	c.Close()

	assert.False(t, c.TrySend("b"))
	c.Send("c") // dropped, must not panic

	v, ok := <-c.Receive()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = <-c.Receive()
	assert.False(t, ok)
}

func TestUnbuffered_TrySendNeedsReceiver(t *testing.T) {
	c := NewUnbuffered[int]()
	assert.False(t, c.TrySend(1))

	got := make(chan int, 1)
	go func() { got <- <-c.Receive() }()

	assert.Eventually(t, func() bool { return c.TrySend(7) }, time.Second, time.Millisecond)
	assert.Equal(t, 7, <-got)
	assert.Equal(t, 0, c.Len())
	c.Close()
	c.Close()
}

func TestNew(t *testing.T) {
	c := New[int](4)
	defer c.Close()
	var s Sender[int] = c
	var r Receiver[int] = c
	go s.Send(1)
	assert.Equal(t, 1, <-r.Receive())
}
