package strategies

import "github.com/rustyeddy/perptrader/market"

// Noop never signals. Useful for watching exits and equity only.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Evaluate(Snapshot) market.Signal { return market.None }
