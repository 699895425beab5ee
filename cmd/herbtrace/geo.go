package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/herbtrace/herbtrace/pkg/geo"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Validate harvest coordinates against the built-in region tables",
}

var (
	validateHerb     string
	validateExpected string
)

var geoValidateCmd = &cobra.Command{
	Use:   "validate <lat,lng>",
	Short: "Run the full collection location check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := geo.ParsePoint(args[0])
		if err != nil {
			return err
		}
		result := geo.ValidateCollectionLocation(p, validateHerb, validateExpected)
		if structuredOutput() {
			return printOutput(result)
		}

		region := "-"
		if result.DetectedRegion != nil {
			region = *result.DetectedRegion
		}
		rows := [][]string{
			{"valid", strconv.FormatBool(result.Valid)},
			{"region", region},
		}
		for _, e := range result.Errors {
			rows = append(rows, []string{"error", e})
		}
		for _, w := range result.Warnings {
			rows = append(rows, []string{"warning", w})
		}
		for _, i := range result.Info {
			rows = append(rows, []string{"info", i})
		}
		printTable([]string{"Check", "Result"}, rows)
		return nil
	},
}

var geoRegionCmd = &cobra.Command{
	Use:   "region <lat,lng>",
	Short: "Resolve the region containing a point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := geo.ParsePoint(args[0])
		if err != nil {
			return err
		}
		if !geo.IsValidCoordinate(p) {
			return fmt.Errorf("%s: %s", p, geo.ErrInvalidCoordinate)
		}
		info := geo.RegionInfo{
			Point:         p,
			Region:        geo.ResolveRegion(p),
			WithinCountry: geo.IsValidCountryCoordinate(p),
			Hotspot:       geo.IsBiodiversityHotspot(p),
		}
		if structuredOutput() {
			return printOutput(info)
		}
		printTable([]string{"Point", "Region", "In Country", "Hotspot"}, [][]string{{
			p.String(), info.Region, strconv.FormatBool(info.WithinCountry), strconv.FormatBool(info.Hotspot),
		}})
		return nil
	},
}

var geoDistanceCmd = &cobra.Command{
	Use:   "distance <lat,lng> <lat,lng>",
	Short: "Great-circle distance between two points in km",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := geo.ParsePoint(args[0])
		if err != nil {
			return err
		}
		b, err := geo.ParsePoint(args[1])
		if err != nil {
			return err
		}
		km, ok := geo.DistanceKm(a, b)
		if !ok {
			return fmt.Errorf("%s", geo.ErrInvalidCoordinate)
		}
		if structuredOutput() {
			return printOutput(map[string]any{"from": a, "to": b, "distanceKm": km})
		}
		fmt.Fprintf(stdout, "%.2f km\n", km)
		return nil
	},
}

var geoRegionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List region boxes in resolution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		regions := geo.Regions()
		if structuredOutput() {
			return printOutput(map[string]any{
				"country":  geo.Country(),
				"regions":  regions,
				"hotspots": geo.HotspotRegions(),
			})
		}
		hotspots := make(map[string]bool)
		for _, h := range geo.HotspotRegions() {
			hotspots[h] = true
		}
		rows := make([][]string, 0, len(regions))
		for _, r := range regions {
			rows = append(rows, []string{
				r.Name,
				fmt.Sprintf("%.2f..%.2f", r.MinLat, r.MaxLat),
				fmt.Sprintf("%.2f..%.2f", r.MinLng, r.MaxLng),
				strconv.FormatBool(hotspots[r.Name]),
			})
		}
		printTable([]string{"Region", "Latitude", "Longitude", "Hotspot"}, rows)
		return nil
	},
}

var geoHerbsCmd = &cobra.Command{
	Use:   "herbs [herb]",
	Short: "Show recommended growing regions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		herbs := geo.Herbs()
		if len(args) == 1 {
			key := geo.NormalizeKey(args[0])
			regions, ok := herbs[key]
			if !ok {
				return fmt.Errorf("%s is not in the affinity table; it is accepted in every region", args[0])
			}
			herbs = map[string][]string{key: regions}
		}
		if structuredOutput() {
			return printOutput(herbs)
		}
		names := make([]string, 0, len(herbs))
		for k := range herbs {
			names = append(names, k)
		}
		sort.Strings(names)
		rows := make([][]string, 0, len(names))
		for _, n := range names {
			rows = append(rows, []string{n, truncate(strings.Join(herbs[n], ", "), 80)})
		}
		printTable([]string{"Herb", "Regions"}, rows)
		return nil
	},
}

func init() {
	geoValidateCmd.Flags().StringVar(&validateHerb, "herb", "", "Herb name for the growing-region check")
	geoValidateCmd.Flags().StringVar(&validateExpected, "expected-region", "", "Region the collector reported")

	geoCmd.AddCommand(geoValidateCmd)
	geoCmd.AddCommand(geoRegionCmd)
	geoCmd.AddCommand(geoDistanceCmd)
	geoCmd.AddCommand(geoRegionsCmd)
	geoCmd.AddCommand(geoHerbsCmd)
}
