package sources

import (
	"sort"

	"flaneur/internal/core"
)

// Tierer assigns a framing tier. It never drops a candidate.
type Tierer func(c Candidate) core.Tier

var majorHouses = []string{"Christie's", "Sotheby's", "Phillips", "Bonhams"}

// AuctionTier makes evening sales at the major houses, and any sale with a
// high estimate at or above megaEstimate, Mega.
func AuctionTier(megaEstimate float64) Tierer {
	return func(c Candidate) core.Tier {
		ev, ok := c.Event.(core.AuctionEvent)
		if !ok {
			return core.TierStandard
		}
		_, major := matchAny(ev.House, majorHouses)
		switch {
		case megaEstimate > 0 && ev.EstimateHigh >= megaEstimate:
			return core.TierMega
		case major && containsPhrase(ev.Title, "evening sale"):
			return core.TierMega
		case major:
			return core.TierFeatured
		}
		return core.TierStandard
	}
}

// DiningTier makes a permit with both sidewalk and roadway seating Mega.
func DiningTier(c Candidate) core.Tier {
	ev, ok := c.Event.(core.OutdoorDiningEvent)
	if ok && ev.SidewalkApproved && ev.RoadwayApproved {
		return core.TierMega
	}
	return core.TierStandard
}

// ResidencyTier frames the mega brands as marquee events.
func ResidencyTier(brands Brands) Tierer {
	return func(c Candidate) core.Tier {
		text := c.Title + " " + c.Summary
		if _, ok := matchAny(text, brands.Mega); ok {
			return core.TierMega
		}
		if _, ok := brands.Find(text); ok {
			return core.TierFeatured
		}
		return core.TierStandard
	}
}

// order sorts by tier, highest first, then by event time.
func order(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Tier != cands[j].Tier {
			return cands[i].Tier > cands[j].Tier
		}
		return cands[i].When.Before(cands[j].When)
	})
}
