package sources

import (
	"testing"

	"flaneur/internal/core"
)

func TestBlueChipRegionalKeywords(t *testing.T) {
	f := BlueChip{
		Base:     BaseBlueChipKeywords,
		Regional: map[string][]string{"london": {"old master", "british art"}},
	}
	tests := []struct {
		name  string
		hub   string
		title string
		want  bool
	}{
		{"regional keyword in its hub", "london", "Old Master Paintings Evening Sale", true},
		{"regional keyword elsewhere", "new-york", "Old Master Paintings Evening Sale", false},
		{"base keyword anywhere", "new-york", "20th Century Evening Sale", true},
		{"accent and case folded", "new-york", "IMPRESSIONIST & Modern Art", true},
		{"neither", "london", "Prints & Multiples Online", false},
		{"partial word does not match", "london", "Old Mastercard Memorabilia", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Candidate{HubID: tt.hub, Title: tt.title}
			if got := f.Keep(c); got != tt.want {
				t.Errorf("Keep(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestChainExclusionIgnoresSeatingApproval(t *testing.T) {
	chains := ChainExclusion{Chains: DefaultChains}
	approved := core.OutdoorDiningEvent{RestaurantName: "Starbucks", SidewalkApproved: true, RoadwayApproved: true}
	c := Candidate{Subject: "Starbucks", Title: "Starbucks opens for outdoor dining", Event: approved}
	if chains.Keep(c) {
		t.Error("Starbucks should be excluded")
	}
	if chains.Keep(Candidate{Subject: "McDonalds"}) {
		t.Error("apostrophe-less chain name should be excluded")
	}
	if !chains.Keep(Candidate{Subject: "Bar Pitti"}) {
		t.Error("independent restaurant should pass")
	}

	kept, dropped := apply([]Candidate{c, {Subject: "Bar Pitti", Event: approved}},
		[]Filter{chains, SeatingApproved{}})
	if len(kept) != 1 || kept[0].Subject != "Bar Pitti" || dropped["chain_exclusion"] != 1 {
		t.Errorf("kept=%v dropped=%v", kept, dropped)
	}
}

func TestSeatingApproved(t *testing.T) {
	f := SeatingApproved{}
	if f.Keep(Candidate{Event: core.OutdoorDiningEvent{RestaurantName: "Frenchette"}}) {
		t.Error("unapproved permit should be dropped")
	}
	if !f.Keep(Candidate{Event: core.OutdoorDiningEvent{RoadwayApproved: true}}) {
		t.Error("roadway approval should be enough")
	}
	if f.Keep(Candidate{Event: core.AuctionEvent{}}) {
		t.Error("non-dining candidate should be dropped")
	}
}

func TestSensitiveHeadline(t *testing.T) {
	f := SensitiveHeadline{}
	if f.Keep(Candidate{Title: "Chanel boutique closes after lawsuit"}) {
		t.Error("lawsuit headline should be dropped")
	}
	if f.Keep(Candidate{Title: "Dior pop-up", Summary: "Two arrested outside the store"}) {
		t.Error("sensitive summary should be dropped")
	}
	if !f.Keep(Candidate{Title: "Hermès opens a summer residency in East Hampton"}) {
		t.Error("lifestyle headline should pass")
	}
}

func TestBrandsAndResidencyTier(t *testing.T) {
	brand, ok := DefaultBrands.Find("HERMES takes over a Montauk beach club")
	if !ok || brand != "Hermès" {
		t.Errorf("Find() = %q, %v", brand, ok)
	}
	tier := ResidencyTier(DefaultBrands)
	if got := tier(Candidate{Title: "Chanel beach pop-up"}); got != core.TierMega {
		t.Errorf("Chanel tier = %v", got)
	}
	if got := tier(Candidate{Title: "Loewe summer shop"}); got != core.TierFeatured {
		t.Errorf("Loewe tier = %v", got)
	}
	if (BrandMatch{Brands: DefaultBrands}).Keep(Candidate{Title: "Local bakery pop-up"}) {
		t.Error("unbranded item should be dropped")
	}
}

func TestAuctionTierAndOrder(t *testing.T) {
	tier := AuctionTier(10_000_000)
	evening := Candidate{ID: "a", Event: core.AuctionEvent{House: "Christie's", Title: "20th Century Evening Sale"}}
	day := Candidate{ID: "b", Event: core.AuctionEvent{House: "Sotheby's", Title: "Contemporary Day Sale"}}
	big := Candidate{ID: "c", Event: core.AuctionEvent{House: "Regional House", Title: "Masterworks", EstimateHigh: 12_000_000}}
	small := Candidate{ID: "d", Event: core.AuctionEvent{House: "Regional House", Title: "Masterworks"}}

	cands := []Candidate{small, day, evening, big}
	for i := range cands {
		cands[i].Tier = tier(cands[i])
	}
	order(cands)

	got := ""
	for _, c := range cands {
		got += c.ID
	}
	if got != "acbd" {
		t.Errorf("order = %q, want acbd", got)
	}
	if cands[2].Tier != core.TierFeatured || cands[3].Tier != core.TierStandard {
		t.Errorf("tiers = %v %v", cands[2].Tier, cands[3].Tier)
	}
}

func TestDiningTier(t *testing.T) {
	full := Candidate{Event: core.OutdoorDiningEvent{SidewalkApproved: true, RoadwayApproved: true}}
	if DiningTier(full) != core.TierMega {
		t.Error("sidewalk and roadway should be mega")
	}
	if DiningTier(Candidate{Event: core.OutdoorDiningEvent{SidewalkApproved: true}}) != core.TierStandard {
		t.Error("sidewalk only should be standard")
	}
}
