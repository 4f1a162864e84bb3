package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := NewRealClock()

	before := time.Now()
	now := c.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), c.Now())

	c.Advance(55 * time.Second)
	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestMockClock_Since(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, c.Since(start))
}

func TestMockClock_Set(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	later := start.Add(2 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
