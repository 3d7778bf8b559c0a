package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cropdoc/internal/pipeline"
	"cropdoc/internal/types"
)

type diagnoseFlags struct {
	crop     string
	notes    string
	parts    string
	lat, lon float64
	hasCoord bool
	compact  bool
}

func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	f := &diagnoseFlags{}
	cmd := &cobra.Command{
		Use:   "diagnose <image>",
		Short: "Diagnose one photo and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			f.hasCoord = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon")
			req := &types.DiagnosisRequest{Image: img, Metadata: f.metadata()}

			p, err := pipeline.NewFromConfig(cmd.Context(), opts.cfg, opts.log, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			res := p.Run(cmd.Context(), req)
			enc := json.NewEncoder(cmd.OutOrStdout())
			if !f.compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&f.crop, "crop", "", "crop type, e.g. maize")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-text notes from the farmer")
	cmd.Flags().StringVar(&f.parts, "parts", "", "comma-separated affected parts")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "field latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "field longitude")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "print single-line JSON")
	return cmd
}

func (f *diagnoseFlags) metadata() types.Metadata {
	m := types.Metadata{
		CropType:      strings.TrimSpace(f.crop),
		Notes:         strings.TrimSpace(f.notes),
		AffectedParts: types.ParseAffectedParts(f.parts),
	}
	if f.hasCoord {
		lat, lon := f.lat, f.lon
		m.Latitude, m.Longitude = &lat, &lon
	}
	return m
}
