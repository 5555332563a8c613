package dpos

// FuelParams are the chain parameters that drive the fuel rate.
type FuelParams struct {
	InitRate   uint64
	MinRate    uint64
	Window     int
	MaxRunStep uint64
}

// BlockStat is the part of a connected block the fuel rate depends on.
type BlockStat struct {
	Height   uint64
	Fuel     uint64
	FuelRate uint64
}

// NextFuelRate returns the fuel rate for the block after the first entry
// of recent, which lists the tip and its ancestors newest first.
//
// The average run step over the window is compared with the block budget.
// Below 75% the rate drops 10%, above 85% it rises 10%, otherwise it holds.
// The initial rate is used until the chain is longer than twice the window.
func NextFuelRate(recent []BlockStat, params FuelParams) uint64 {
	if len(recent) == 0 || params.Window <= 0 {
		return params.InitRate
	}

	tip := recent[0]
	if uint64(params.Window)*2+1 >= tip.Height || len(recent) < params.Window {
		return params.InitRate
	}

	var total uint64
	for _, blk := range recent[:params.Window] {
		if blk.FuelRate == 0 {
			continue
		}
		total += blk.Fuel / blk.FuelRate * 100
	}
	average := total / uint64(params.Window)

	rate := tip.FuelRate
	switch {
	case average*4 < params.MaxRunStep*3:
		rate = rate * 9 / 10
	case average*20 > params.MaxRunStep*17:
		rate = rate * 11 / 10
	}

	if rate < params.MinRate {
		rate = params.MinRate
	}

	return rate
}
