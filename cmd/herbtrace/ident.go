package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/herbtrace/herbtrace/pkg/ident"
	"github.com/herbtrace/herbtrace/pkg/provenance"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Generate provenance identifiers",
}

var idCount int

var idGenerateCmd = &cobra.Command{
	Use:       "generate <kind>",
	Short:     "Generate IDs (COLLECTION, PROCESSING, TEST, BATCH, QR)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"COLLECTION", "PROCESSING", "TEST", "BATCH", "QR"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := ident.ParseKind(args[0])
		if err != nil {
			return err
		}
		if idCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		gen := ident.New()
		ids := make([]string, 0, idCount)
		for i := 0; i < idCount; i++ {
			id, err := gen.Generate(kind)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return printList(ids)
	},
}

var idCertificateCmd = &cobra.Command{
	Use:   "certificate <type>",
	Short: "Generate a certificate number such as ORGANIC/2024/A1B2C3",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := ident.New().CertificateNumber(args[0])
		if err != nil {
			return err
		}
		return printList([]string{n})
	},
}

var idBatchNumberCmd = &cobra.Command{
	Use:   "batch-number <sequence>",
	Short: "Format a dated batch number for a daily sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := strconv.Atoi(args[0])
		if err != nil || seq < 0 {
			return fmt.Errorf("sequence must be a non-negative integer")
		}
		return printList([]string{ident.New().BatchNumber(seq)})
	},
}

var (
	qrBase         string
	qrProduct      string
	qrManufacturer string
)

var idProvenanceCmd = &cobra.Command{
	Use:   "provenance <batchId>",
	Short: "Print the consumer provenance URL and QR payload for a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := provenance.NewPayload(qrBase, args[0], qrProduct, qrManufacturer)
		if err != nil {
			return err
		}
		if structuredOutput() {
			return printOutput(payload)
		}
		encoded, err := payload.Encode()
		if err != nil {
			return err
		}
		printTable([]string{"Field", "Value"}, [][]string{
			{"url", payload.VerificationURL},
			{"payload", encoded},
		})
		return nil
	},
}

func printList(values []string) error {
	if structuredOutput() {
		return printOutput(values)
	}
	for _, v := range values {
		fmt.Fprintln(stdout, v)
	}
	return nil
}

func init() {
	idGenerateCmd.Flags().IntVarP(&idCount, "count", "n", 1, "Number of IDs to generate")
	idProvenanceCmd.Flags().StringVar(&qrBase, "base-url", envOrDefault("HERBTRACE_PROVENANCE_BASE_URL", "http://localhost:8080"), "Public base URL")
	idProvenanceCmd.Flags().StringVar(&qrProduct, "product", "", "Product name")
	idProvenanceCmd.Flags().StringVar(&qrManufacturer, "manufacturer", "", "Manufacturer name")

	idCmd.AddCommand(idGenerateCmd)
	idCmd.AddCommand(idCertificateCmd)
	idCmd.AddCommand(idBatchNumberCmd)
	idCmd.AddCommand(idProvenanceCmd)
}
