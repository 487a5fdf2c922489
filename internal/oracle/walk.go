package oracle

import "math/rand"

// walkState is the cached per-symbol state of the simulated random walk.
type walkState struct {
	lastPrice  float64
	trend      float64 // in [-1, 1]
	volatility float64 // percent per step
}

func (o *Oracle) newWalk(seedPrice float64) *walkState {
	return &walkState{
		lastPrice:  seedPrice,
		trend:      o.rng.Float64()*2 - 1,
		volatility: o.cfg.Volatility,
	}
}

// step evolves the walk one tick:
//
//	lastPrice *= 1 + (0.7*trend + 0.3*rand(-1,1)) * volatility/100
//
// The trend re-rolls stochastically so the walk does not run away in one
// direction. Caller holds the oracle mutex.
func (st *walkState) step(rng *rand.Rand, trendShiftChance float64) float64 {
	if rng.Float64() < trendShiftChance {
		st.trend = rng.Float64()*2 - 1
	}
	noise := rng.Float64()*2 - 1
	st.lastPrice *= 1 + (0.7*st.trend+0.3*noise)*st.volatility/100
	if st.lastPrice <= 0 {
		// Volatility above 100% could cross zero; pin to a tiny positive
		// price so later steps stay well-defined.
		st.lastPrice = 1e-12
	}
	return st.lastPrice
}
