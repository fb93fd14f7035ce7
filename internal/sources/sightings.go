package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/persistence"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSighting wraps field validation failures of a submission.
	ErrInvalidSighting = errors.New("invalid sighting")
	// ErrSightingsDisabled is returned for locales that do not accept
	// reader sightings.
	ErrSightingsDisabled = errors.New("sightings are not enabled for this locale")
)

var validate = validator.New()

// SubmitSighting validates a reader submission and stores it as pending.
// The ID, status and creation time are assigned here.
func SubmitSighting(ctx context.Context, db persistence.Database, sg *core.PropertySighting, now time.Time) error {
	sg.Address = strings.TrimSpace(sg.Address)
	sg.Description = strings.TrimSpace(sg.Description)
	sg.ID = ""
	if err := validate.Struct(sg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidSighting, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSighting, err)
	}

	loc, err := db.Locales().Get(ctx, sg.LocaleID)
	if err != nil {
		return fmt.Errorf("locale %s: %w", sg.LocaleID, err)
	}
	if !loc.EnableSightings {
		return fmt.Errorf("%w: %s", ErrSightingsDisabled, loc.ID)
	}

	sg.ID = uuid.NewString()
	sg.Status = core.SightingPending
	sg.Confidence = nil
	sg.ArticleID = ""
	sg.CreatedAt = now
	if err := db.Sightings().Create(ctx, sg); err != nil {
		return fmt.Errorf("failed to store sighting: %w", err)
	}
	return nil
}

// SightingFetcher reads pending reader-submitted property sightings. It
// ignores the hub: every sighting targets its own locale.
type SightingFetcher struct {
	repo  persistence.SightingRepository
	limit int
}

// NewSightingFetcher creates a SightingFetcher returning at most limit
// sightings per run.
func NewSightingFetcher(repo persistence.SightingRepository, limit int) *SightingFetcher {
	return &SightingFetcher{repo: repo, limit: limit}
}

func (f *SightingFetcher) Fetch(ctx context.Context, _ Hub) ([]Candidate, error) {
	pending, err := f.repo.ListPending(ctx, f.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sightings: %w", err)
	}
	out := make([]Candidate, 0, len(pending))
	for _, sg := range pending {
		facts := []string{"Address: " + sg.Address, "Reader description: " + sg.Description}
		if sg.PriceText != "" {
			facts = append(facts, "Asking price: "+sg.PriceText)
		}
		if sg.PhotoURL != "" {
			facts = append(facts, "Photo attached")
		}
		out = append(out, Candidate{
			ID:      "sighting:" + sg.ID,
			Kind:    core.TypePropertyWatch,
			Title:   "Property sighting at " + sg.Address,
			Subject: sg.Address,
			Summary: sg.Description,
			When:    sg.CreatedAt,
			Facts:   facts,
			Targets: []string{sg.LocaleID},
			Event:   sg,
		})
	}
	return out, nil
}

// Settle records the triage decision on the sighting. Sightings below the
// confidence threshold are held for an editor.
func (f *SightingFetcher) Settle(ctx context.Context, c Candidate, out Outcome) error {
	sg, ok := c.Event.(core.PropertySighting)
	if !ok {
		return fmt.Errorf("candidate %s is not a sighting", c.ID)
	}
	status := core.SightingHeld
	if out.Published {
		status = core.SightingPublished
	}
	if err := f.repo.MarkProcessed(ctx, sg.ID, status, out.Confidence, out.ArticleID); err != nil {
		return fmt.Errorf("failed to settle sighting %s: %w", sg.ID, err)
	}
	return nil
}
