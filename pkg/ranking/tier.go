package ranking

import "github.com/XavierBriggs/fortuna/services/arena/pkg/models"

// TierBand is one row of the tier table; Min and Max are inclusive
type TierBand struct {
	Tier models.Tier
	Min  int
	Max  int
}

// Tiers covers [MinRating, MaxRating] without gaps, in ascending order
var Tiers = []TierBand{
	{Tier: models.TierBronze, Min: MinRating, Max: 1099},
	{Tier: models.TierSilver, Min: 1100, Max: 1299},
	{Tier: models.TierGold, Min: 1300, Max: 1499},
	{Tier: models.TierPlatinum, Min: 1500, Max: 1699},
	{Tier: models.TierDiamond, Min: 1700, Max: 1899},
	{Tier: models.TierMaster, Min: 1900, Max: 2199},
	{Tier: models.TierGrandmaster, Min: 2200, Max: MaxRating},
}

// RankTier returns the tier for a rating. Ratings are clamped first, so every
// input lands in a band.
func RankTier(rating int) models.Tier {
	r := ClampRating(rating)
	for _, band := range Tiers {
		if r >= band.Min && r <= band.Max {
			return band.Tier
		}
	}
	// unreachable while Tiers covers the clamped range
	panic("ranking: tier table does not cover rating")
}
