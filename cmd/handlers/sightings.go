package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/sources"

	"github.com/spf13/cobra"
)

// NewSightingsCmd creates the sightings command
func NewSightingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sightings",
		Short: "Manage reader property sightings",
	}
	cmd.AddCommand(newSightingsSubmitCmd())
	return cmd
}

func newSightingsSubmitCmd() *cobra.Command {
	var sg core.PropertySighting

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a property sighting for triage",
		Long: `Store a reader property sighting as pending. The property-sightings
pipeline generates a story for it and publishes it when the generated
confidence clears sources.sighting_confidence_threshold.

Example:
  flaneur sightings submit --neighborhood nyc-tribeca \
    --address "12 Harrison Street" \
    --description "Scaffolding came down and a sales office opened."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := sources.SubmitSighting(cmd.Context(), a.db, &sg, time.Now()); err != nil {
				return fmt.Errorf("sighting rejected: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sg)
		},
	}

	cmd.Flags().StringVar(&sg.LocaleID, "neighborhood", "", "neighborhood ID (required)")
	cmd.Flags().StringVar(&sg.Address, "address", "", "street address (required)")
	cmd.Flags().StringVar(&sg.Description, "description", "", "what was seen (required)")
	cmd.Flags().StringVar(&sg.PriceText, "price", "", "asking price as written")
	cmd.Flags().StringVar(&sg.PhotoURL, "photo-url", "", "photo link")
	cmd.Flags().StringVar(&sg.SubmittedBy, "email", "", "submitter email")
	_ = cmd.MarkFlagRequired("neighborhood")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}
