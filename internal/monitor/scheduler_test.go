package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerReplacesPendingTask(t *testing.T) {
	s := newTaskScheduler()
	var first, second atomic.Int32

	s.Schedule("key", 10*time.Millisecond, func() { first.Add(1) })
	s.Schedule("key", 10*time.Millisecond, func() { second.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestSchedulerCancel(t *testing.T) {
	s := newTaskScheduler()
	var fired atomic.Int32

	s.Schedule("key", 10*time.Millisecond, func() { fired.Add(1) })
	s.Cancel("key")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSchedulerCancelAll(t *testing.T) {
	s := newTaskScheduler()
	var fired atomic.Int32

	s.Schedule("a", 10*time.Millisecond, func() { fired.Add(1) })
	s.Schedule("b", 10*time.Millisecond, func() { fired.Add(1) })
	s.CancelAll()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSchedulerIndependentKeys(t *testing.T) {
	s := newTaskScheduler()
	var fired atomic.Int32

	s.Schedule("a", 5*time.Millisecond, func() { fired.Add(1) })
	s.Schedule("b", 5*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), fired.Load())
}
