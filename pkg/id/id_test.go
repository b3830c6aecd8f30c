package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	a := NewGenerator(42)
	b := NewGenerator(42)

	for i := 0; i < 5; i++ {
		assert.Equal(t, a.At(ts), b.At(ts))
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	t.Parallel()

	g := NewGenerator(7)
	ts := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)

	prev := g.At(ts)
	for i := 0; i < 50; i++ {
		next := g.At(ts)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestNewParses(t *testing.T) {
	t.Parallel()

	s := New()
	parsed, err := ulid.Parse(s)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ulid.Time(parsed.Time()), 5*time.Second)
}
