package catalog

import "fmt"

// Tier is a question difficulty level. Each tier carries a fixed point
// value and a position in the easy-to-hard ordering.
type Tier string

const (
	TierNovice       Tier = "novice"
	TierAmateur      Tier = "amateur"
	TierInitiate     Tier = "initiate"
	TierProfessional Tier = "professional"
	TierExpert       Tier = "expert"
)

var tierTable = []struct {
	tier   Tier
	points float64
}{
	{TierNovice, 0.5},
	{TierAmateur, 1.0},
	{TierInitiate, 2.0},
	{TierProfessional, 3.5},
	{TierExpert, 5.5},
}

// Tiers returns all tiers in increasing difficulty order.
func Tiers() []Tier {
	out := make([]Tier, len(tierTable))
	for i, e := range tierTable {
		out[i] = e.tier
	}
	return out
}

// PointsFor returns the point value awarded for a correct answer at t.
func PointsFor(t Tier) (float64, error) {
	for _, e := range tierTable {
		if e.tier == t {
			return e.points, nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty tier %q", t)
}

// TierOrder returns t's position in the difficulty ordering (0 = easiest),
// or -1 if t is not a known tier.
func TierOrder(t Tier) int {
	for i, e := range tierTable {
		if e.tier == t {
			return i
		}
	}
	return -1
}

// ParseTier validates a raw tier string.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if TierOrder(t) < 0 {
		return "", fmt.Errorf("unknown difficulty tier %q", s)
	}
	return t, nil
}
