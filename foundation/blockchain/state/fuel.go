package state

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/dpos"
)

// FuelRate returns the fuel rate the block after the tip must carry.
func (s *State) FuelRate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextFuelRate()
}

// nextFuelRate computes the fuel rate from the trailing window of
// connected headers.
func (s *State) nextFuelRate() uint64 {
	params := dpos.FuelParams{
		InitRate:   s.params.InitFuelRate,
		MinRate:    s.params.MinFuelRate,
		Window:     s.params.FuelWindow,
		MaxRunStep: s.params.MaxRunStep,
	}

	n := min(len(s.index), params.Window)

	recent := make([]dpos.BlockStat, n)
	for i := range n {
		hdr := s.index[len(s.index)-1-i].header
		recent[i] = dpos.BlockStat{
			Height:   hdr.Height,
			Fuel:     hdr.Fuel,
			FuelRate: hdr.FuelRate,
		}
	}

	return dpos.NextFuelRate(recent, params)
}
