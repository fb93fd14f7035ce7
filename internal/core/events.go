package core

import "time"

// Tier is an ordinal framing hint for story generation. It orders candidates
// and shapes the prompt; it never filters.
type Tier int

const (
	TierStandard Tier = iota
	TierFeatured
	TierMega
)

func (t Tier) String() string {
	switch t {
	case TierMega:
		return "mega"
	case TierFeatured:
		return "featured"
	default:
		return "standard"
	}
}

// AuctionEvent is one sale on an auction house calendar.
type AuctionEvent struct {
	ID           string    `json:"id"`
	House        string    `json:"house"`
	Title        string    `json:"title"`
	Region       string    `json:"region"`
	Location     string    `json:"location,omitempty"`
	URL          string    `json:"url,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	LotCount     int       `json:"lot_count,omitempty"`
	EstimateHigh float64   `json:"estimate_high,omitempty"`
	Currency     string    `json:"currency,omitempty"`
}

// OutdoorDiningEvent is a sidewalk or roadway seating permit filing.
type OutdoorDiningEvent struct {
	ID               string    `json:"id"`
	RestaurantName   string    `json:"restaurant_name"`
	Address          string    `json:"address"`
	Region           string    `json:"region"`
	SidewalkApproved bool      `json:"sidewalk_approved"`
	RoadwayApproved  bool      `json:"roadway_approved"`
	SubmittedAt      time.Time `json:"submitted_at"`
	SeatingCapacity  int       `json:"seating_capacity,omitempty"`
}

// ResidencyAnnouncement is a brand pop-up or seasonal residency report.
type ResidencyAnnouncement struct {
	ID          string    `json:"id"`
	Brand       string    `json:"brand"`
	Headline    string    `json:"headline"`
	Region      string    `json:"region"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// SightingStatus tracks a user-submitted property sighting through triage.
type SightingStatus string

const (
	SightingPending   SightingStatus = "pending"
	SightingPublished SightingStatus = "published"
	SightingHeld      SightingStatus = "held"
	SightingRejected  SightingStatus = "rejected"
)

// PropertySighting is a reader-submitted report, the only domain event that
// is stored as the source of truth and read back by its pipeline.
type PropertySighting struct {
	ID          string         `json:"id" validate:"omitempty,uuid"`
	LocaleID    string         `json:"neighborhood_id" validate:"required"`
	Address     string         `json:"address" validate:"required,min=5,max=200"`
	Description string         `json:"description" validate:"required,min=10,max=2000"`
	PriceText   string         `json:"price,omitempty" validate:"max=64"`
	PhotoURL    string         `json:"photo_url,omitempty" validate:"omitempty,url"`
	SubmittedBy string         `json:"submitted_by,omitempty" validate:"omitempty,email"`
	Status      SightingStatus `json:"status"`
	Confidence  *float64       `json:"confidence,omitempty"`
	ArticleID   string         `json:"article_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Story is the generated, localisable copy for one surviving candidate.
type Story struct {
	CandidateID    string   `json:"candidate_id"`
	Headline       string   `json:"headline"`
	Body           string   `json:"body"`
	Teaser         string   `json:"teaser"`
	LinkCandidates []string `json:"link_candidates"`
	Confidence     float64  `json:"confidence"`
	Model          string   `json:"model"`
}
