package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcessSuppressesRepeat(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess("irrigation/dev-1/sensor", []byte(`{"deviceId":"dev-1"}`)))
	assert.False(t, d.ShouldProcess("irrigation/dev-1/sensor", []byte(`{"deviceId":"dev-1"}`)))
	assert.False(t, d.ShouldProcess("irrigation/dev-1/sensor", []byte(`{"deviceId":"dev-1"}`)))
}

func TestShouldProcessDistinguishesTopicAndPayload(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess("t/1", []byte("x")))
	assert.True(t, d.ShouldProcess("t/2", []byte("x")))
	assert.True(t, d.ShouldProcess("t/1", []byte("y")))
	assert.False(t, d.ShouldProcess("t/1", []byte("x")))
}

func TestShouldProcessExpiresAfterTTL(t *testing.T) {
	d := New(10*time.Millisecond, 100)

	assert.True(t, d.ShouldProcess("t", []byte("payload")))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, d.ShouldProcess("t", []byte("payload")))
}

func TestCapEvictsOldestFirst(t *testing.T) {
	d := New(time.Minute, 3)

	for i := 0; i < 4; i++ {
		assert.True(t, d.ShouldProcess("t", []byte(fmt.Sprintf("msg-%d", i))))
	}

	// msg-0 was the oldest and got evicted, so it reads as new again;
	// the younger entries are still remembered
	assert.True(t, d.ShouldProcess("t", []byte("msg-0")))
	assert.False(t, d.ShouldProcess("t", []byte("msg-2")))
	assert.False(t, d.ShouldProcess("t", []byte("msg-3")))
}
