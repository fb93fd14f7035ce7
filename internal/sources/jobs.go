package sources

import (
	"time"

	"flaneur/internal/persistence"
	"flaneur/internal/pipeline"
)

// Job names.
const (
	JobAuctionCalendar   = "auction-calendar"
	JobAlfrescoAlerts    = "alfresco-alerts"
	JobBrandResidency    = "brand-residency"
	JobPropertySightings = "property-sightings"
)

// Settings are the knobs shared by the story jobs.
type Settings struct {
	AuctionURL        string
	DiningURL         string
	ResidencyFeedURL  string
	HTTP              HTTPOptions
	Budget            time.Duration
	MegaEstimate      float64
	SightingThreshold float64
	SightingLimit     int
	Preflight         func() error
	EngineOptions     []pipeline.EngineOption
}

// Jobs builds the four story jobs over one hub map, generator and store.
func Jobs(hubs HubSet, db persistence.Database, gen Generator, s Settings) []pipeline.Job {
	deps := func(f Fetcher) JobDeps {
		return JobDeps{DB: db, Fetcher: f, Generator: gen, Preflight: s.Preflight, EngineOptions: s.EngineOptions}
	}
	return []pipeline.Job{
		NewStoryJob(JobConfig{
			Name:             JobAuctionCalendar,
			Hubs:             hubs.For(JobAuctionCalendar),
			Filters:          []Filter{BlueChip{Base: BaseBlueChipKeywords, Regional: hubs.RegionalKeywords()}},
			Tier:             AuctionTier(s.MegaEstimate),
			Budget:           s.Budget,
			Limit:            12,
			FetchConcurrency: 2,
		}, deps(NewAuctionFetcher(s.AuctionURL, 14*24*time.Hour, s.HTTP))),

		NewStoryJob(JobConfig{
			Name:             JobAlfrescoAlerts,
			Hubs:             hubs.For(JobAlfrescoAlerts),
			Filters:          []Filter{ChainExclusion{Chains: DefaultChains}, SeatingApproved{}},
			Tier:             DiningTier,
			Budget:           s.Budget,
			Limit:            8,
			FetchConcurrency: 2,
		}, deps(NewDiningFetcher(s.DiningURL, 7*24*time.Hour, s.HTTP))),

		NewStoryJob(JobConfig{
			Name:             JobBrandResidency,
			Hubs:             hubs.For(JobBrandResidency),
			Filters:          []Filter{BrandMatch{Brands: DefaultBrands}, SensitiveHeadline{}},
			Tier:             ResidencyTier(DefaultBrands),
			Budget:           s.Budget,
			Limit:            8,
			FetchConcurrency: 2,
		}, deps(NewResidencyFetcher(s.ResidencyFeedURL, 7*24*time.Hour, DefaultBrands, s.HTTP))),

		NewStoryJob(JobConfig{
			Name:          JobPropertySightings,
			Filters:       []Filter{SensitiveHeadline{}},
			Budget:        s.Budget,
			MinConfidence: s.SightingThreshold,
		}, deps(NewSightingFetcher(db.Sightings(), s.SightingLimit))),
	}
}
