// Package id produces ULIDs for positions, operations and backtest runs.
//
// Live code uses New, which seeds its entropy from crypto/rand. Backtests use a
// Generator with a fixed seed and the bar timestamp so that two replays over the
// same data emit identical identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out lexicographically increasing ULIDs.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator returns a Generator whose entropy stream is fully determined by seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// At returns a ULID stamped with t.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.entropy)
	if err != nil {
		// entropy overflowed within one millisecond; reseed
		g.entropy = ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
		id = ulid.MustNew(ulid.Timestamp(t.UTC()), g.entropy)
	}
	return id.String()
}

var std *Generator

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	std = NewGenerator(seed)
}

// New returns a ULID for the current wall clock.
func New() string {
	return std.At(time.Now())
}

// At returns a ULID from the shared generator stamped with t.
func At(t time.Time) string {
	return std.At(t)
}
