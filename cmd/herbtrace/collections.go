package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/herbtrace/herbtrace/pkg/collection"
	"github.com/herbtrace/herbtrace/pkg/ident"
)

const collectionsAPIBase = "/api/v1/collections"

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Create, inspect and move collection records through their lifecycle",
}

var (
	listScope     string
	listFilter    string
	listSearch    string
	listPageSize  int
	listPageToken string
)

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collection records visible to the caller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := listPath()
		if err != nil {
			return err
		}
		var list collection.List
		if err := newClient().getJSON(path, &list); err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		if structuredOutput() {
			return printOutput(list)
		}
		printRecords(list.Items)
		if list.NextPageToken != "" {
			fmt.Fprintf(stdout, "\nnext page: --page-token %s\n", list.NextPageToken)
		}
		return nil
	},
}

func listPath() (string, error) {
	q := url.Values{}
	if listPageSize > 0 {
		q.Set("pageSize", strconv.Itoa(listPageSize))
	}
	if listPageToken != "" {
		q.Set("pageToken", listPageToken)
	}

	path := collectionsAPIBase
	switch {
	case listSearch != "":
		path += "/search"
		q.Set("q", listSearch)
	case listScope == "mine":
		path += "/mine"
	case listScope == "all":
		path += "/all"
	case listScope == "":
	default:
		return "", fmt.Errorf("unknown --scope %q (expected mine or all)", listScope)
	}
	if listFilter != "" {
		q.Set("filter", listFilter)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path, nil
}

var collectionsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one collection record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec collection.Record
		if err := newClient().getJSON(collectionsAPIBase+"/"+url.PathEscape(args[0]), &rec); err != nil {
			return fmt.Errorf("failed to get collection: %w", err)
		}
		if structuredOutput() {
			return printOutput(rec)
		}
		printRecordDetail(&rec)
		return nil
	},
}

var createReq collection.CreateRequest
var createLat, createLng, createAltitude float64

var collectionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a new harvest (FARMER role)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := createReq
		req.Latitude = &createLat
		req.Longitude = &createLng
		if cmd.Flags().Changed("altitude") {
			req.AltitudeMeters = &createAltitude
		}

		var resp collection.CreateResponse
		if err := newClient().postJSON(collectionsAPIBase, req, &resp); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if structuredOutput() {
			return printOutput(resp)
		}
		printRecordDetail(resp.Collection)
		if resp.Validation != nil {
			for _, w := range resp.Validation.Warnings {
				fmt.Fprintf(stdout, "warning: %s\n", w)
			}
			for _, i := range resp.Validation.Info {
				fmt.Fprintf(stdout, "info: %s\n", i)
			}
		}
		return nil
	},
}

var statusReason string

var collectionsStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move a record to a new lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec collection.Record
		body := collection.StatusRequest{Status: args[1], Reason: statusReason}
		path := collectionsAPIBase + "/" + url.PathEscape(args[0]) + "/status"
		if err := newClient().patchJSON(path, body, &rec); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		if structuredOutput() {
			return printOutput(rec)
		}
		fmt.Fprintf(stdout, "%s is now %s (version %d)\n", rec.ID, rec.Status, rec.Version)
		return nil
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete a record (status becomes REJECTED)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec collection.Record
		if err := newClient().deleteJSON(collectionsAPIBase+"/"+url.PathEscape(args[0]), &rec); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
		if structuredOutput() {
			return printOutput(rec)
		}
		fmt.Fprintf(stdout, "%s is now %s\n", rec.ID, rec.Status)
		return nil
	},
}

var statsSince string

var collectionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := collectionsAPIBase + "/statistics"
		if statsSince != "" {
			path += "?since=" + url.QueryEscape(statsSince)
		}
		var stats collection.Statistics
		if err := newClient().getJSON(path, &stats); err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}
		if structuredOutput() {
			return printOutput(stats)
		}
		fmt.Fprintf(stdout, "collections: %d, total: %s\n\n",
			stats.TotalCollections, ident.FormatQuantity(stats.TotalQuantityKg))
		if len(stats.ByHerb) > 0 {
			rows := make([][]string, 0, len(stats.ByHerb))
			for _, h := range stats.ByHerb {
				rows = append(rows, []string{h.HerbName, strconv.FormatInt(h.Count, 10), ident.FormatQuantity(h.TotalQuantity)})
			}
			printTable([]string{"Herb", "Count", "Quantity"}, rows)
			fmt.Fprintln(stdout)
		}
		if len(stats.ByRegion) > 0 {
			rows := make([][]string, 0, len(stats.ByRegion))
			for _, r := range stats.ByRegion {
				rows = append(rows, []string{r.Region, strconv.FormatInt(r.Count, 10), ident.FormatQuantity(r.TotalQuantity)})
			}
			printTable([]string{"Region", "Count", "Quantity"}, rows)
		}
		return nil
	},
}

var collectionsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the audit trail of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hist collection.HistoryResponse
		if err := newClient().getJSON(collectionsAPIBase+"/"+url.PathEscape(args[0])+"/history", &hist); err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		if structuredOutput() {
			return printOutput(hist)
		}
		rows := make([][]string, 0, len(hist.Events))
		for _, e := range hist.Events {
			rows = append(rows, []string{
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.EventType,
				e.Actor,
				e.Outcome,
				truncate(e.Reason, 50),
			})
		}
		printTable([]string{"Time", "Event", "Actor", "Outcome", "Reason"}, rows)
		return nil
	},
}

func printRecordDetail(r *collection.Record) {
	if r == nil {
		return
	}
	printTable([]string{"Field", "Value"}, [][]string{
		{"id", r.ID},
		{"herb", r.HerbName},
		{"scientificName", r.ScientificName},
		{"quantity", ident.FormatQuantity(r.QuantityKg)},
		{"location", truncate(r.CollectionLocation, 60)},
		{"coordinates", r.Point().String()},
		{"region", r.DetectedRegion},
		{"date", r.CollectionDate.Format("2006-01-02")},
		{"collector", r.CollectorID},
		{"status", string(r.Status)},
		{"version", strconv.FormatInt(r.Version, 10)},
	})
}

func init() {
	collectionsListCmd.Flags().StringVar(&listScope, "scope", "", "mine (FARMER) or all (ADMIN, REGULATOR)")
	collectionsListCmd.Flags().StringVar(&listFilter, "filter", "", `Filter expression, e.g. status = 'TESTED' AND quantityKg > 5`)
	collectionsListCmd.Flags().StringVar(&listSearch, "search", "", "Search herb, scientific name and location")
	collectionsListCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Page size (server default 20, max 100)")
	collectionsListCmd.Flags().StringVar(&listPageToken, "page-token", "", "Token from a previous page")

	f := collectionsCreateCmd.Flags()
	f.StringVar(&createReq.HerbName, "herb", "", "Herb name")
	f.StringVar(&createReq.ScientificName, "scientific-name", "", "Scientific name")
	f.Float64Var(&createReq.QuantityKg, "quantity", 0, "Quantity in kg")
	f.Float64Var(&createLat, "lat", 0, "Latitude")
	f.Float64Var(&createLng, "lng", 0, "Longitude")
	f.StringVar(&createReq.CollectionLocation, "location", "", "Collection location description")
	f.StringVar(&createReq.ExpectedRegion, "expected-region", "", "Region the collector expects")
	f.StringVar(&createReq.CollectionDate, "date", "", "Collection date (YYYY-MM-DD)")
	f.StringVar(&createReq.CollectionTime, "time", "", "Collection time (HH:MM)")
	f.StringVar(&createReq.CollectionMethod, "method", "", "HAND_PICKED, CUTTING_TOOL, DIGGING, SHAKING or MECHANICAL")
	f.StringVar(&createReq.Season, "season", "", "SPRING, SUMMER, MONSOON or WINTER")
	f.Float64Var(&createAltitude, "altitude", 0, "Altitude in meters")
	f.StringVar(&createReq.PlantPartUsed, "plant-part", "", "Plant part used")
	f.StringVar(&createReq.AdditionalNotes, "notes", "", "Additional notes")
	_ = collectionsCreateCmd.MarkFlagRequired("herb")
	_ = collectionsCreateCmd.MarkFlagRequired("lat")
	_ = collectionsCreateCmd.MarkFlagRequired("lng")

	collectionsStatusCmd.Flags().StringVar(&statusReason, "reason", "", "Reason recorded in the audit trail")
	collectionsStatsCmd.Flags().StringVar(&statsSince, "since", "", "Start date (YYYY-MM-DD or RFC3339)")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsGetCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsStatusCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	collectionsCmd.AddCommand(collectionsStatsCmd)
	collectionsCmd.AddCommand(collectionsHistoryCmd)
}
