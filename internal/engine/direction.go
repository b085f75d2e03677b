package engine

// Direction orders the two venues of a market for a round trip.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionBuyASellB
	DirectionBuyBSellA
)

func (d Direction) String() string {
	switch d {
	case DirectionBuyASellB:
		return "buy A / sell B"
	case DirectionBuyBSellA:
		return "buy B / sell A"
	default:
		return "none"
	}
}

// Resolve turns a signed gap percent into a venue ordering. The comparison is
// inclusive and symmetric: a gap exactly at the threshold counts as a signal
// on either side.
func Resolve(gapPct, thresholdPct float64) Direction {
	switch {
	case gapPct >= thresholdPct:
		return DirectionBuyASellB
	case gapPct <= -thresholdPct:
		return DirectionBuyBSellA
	default:
		return DirectionNone
	}
}
