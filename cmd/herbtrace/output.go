package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/herbtrace/herbtrace/pkg/collection"
	"github.com/herbtrace/herbtrace/pkg/ident"
)

var stdout io.Writer = os.Stdout

// Output formats accepted by -o. wide is a table with extra record columns.
const (
	formatTable = "table"
	formatWide  = "wide"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkOutputFormat() error {
	switch outputFmt {
	case formatTable, formatWide, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (use table, wide, json or yaml)", outputFmt)
}

func structuredOutput() bool {
	return outputFmt == formatJSON || outputFmt == formatYAML
}

func printOutput(v any) error {
	if outputFmt == formatYAML {
		return printYAML(v)
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON first so keys keep their json tag names.
func printYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	defer enc.Close()
	enc.SetIndent(2)
	return enc.Encode(doc)
}

// printTable writes an aligned table with upper-cased headers.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(w, strings.Join(cells, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

// recordColumn is one column of the collection list table.
type recordColumn struct {
	header string
	wide   bool
	value  func(r *collection.Record) string
}

var recordColumns = []recordColumn{
	{header: "ID", value: func(r *collection.Record) string { return r.ID }},
	{header: "Herb", value: func(r *collection.Record) string { return truncate(r.HerbName, 24) }},
	{header: "Scientific Name", wide: true, value: func(r *collection.Record) string { return truncate(r.ScientificName, 28) }},
	{header: "Quantity", value: func(r *collection.Record) string { return ident.FormatQuantity(r.QuantityKg) }},
	{header: "Region", value: func(r *collection.Record) string { return r.DetectedRegion }},
	{header: "Coordinates", wide: true, value: func(r *collection.Record) string { return r.Point().String() }},
	{header: "Date", value: func(r *collection.Record) string { return r.CollectionDate.Format("2006-01-02") }},
	{header: "Status", value: statusCell},
	{header: "Collector", value: func(r *collection.Record) string { return r.CollectorID }},
	{header: "Version", wide: true, value: func(r *collection.Record) string { return strconv.FormatInt(r.Version, 10) }},
}

// statusCell marks terminal statuses so they stand out in long lists.
func statusCell(r *collection.Record) string {
	if r.Status.Terminal() {
		return string(r.Status) + " (final)"
	}
	return string(r.Status)
}

// printRecords writes one row per record, then a count and total weight.
func printRecords(items []collection.Record) {
	if len(items) == 0 {
		fmt.Fprintln(stdout, "No collections found.")
		return
	}
	wide := outputFmt == formatWide

	var headers []string
	for _, c := range recordColumns {
		if !c.wide || wide {
			headers = append(headers, c.header)
		}
	}
	rows := make([][]string, 0, len(items))
	var totalKg float64
	for i := range items {
		r := &items[i]
		totalKg += r.QuantityKg
		row := make([]string, 0, len(headers))
		for _, c := range recordColumns {
			if !c.wide || wide {
				row = append(row, c.value(r))
			}
		}
		rows = append(rows, row)
	}
	printTable(headers, rows)

	noun := "collections"
	if len(items) == 1 {
		noun = "collection"
	}
	fmt.Fprintf(stdout, "\n%d %s, %s total\n", len(items), noun, ident.FormatQuantity(totalKg))
}

// truncate shortens s to max bytes, ending in "..." when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
