// Package provenance builds the consumer-facing links encoded into batch QR
// codes. Rendering the QR image itself happens elsewhere.
package provenance

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// PayloadType tags QR payloads produced by this package.
const PayloadType = "HerbTrace_Batch"

// ConsumerURL returns <base>/provenance/consumer/<batchID>. A trailing slash
// on base is dropped and the batch ID is path-escaped.
func ConsumerURL(base, batchID string) string {
	return strings.TrimRight(base, "/") + "/provenance/consumer/" + url.PathEscape(batchID)
}

// Payload is the structured QR content for a product batch.
type Payload struct {
	Type            string `json:"type"`
	BatchID         string `json:"batchId"`
	ProductName     string `json:"productName,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	VerificationURL string `json:"verificationUrl"`
}

// NewPayload fills a Payload for batchID with its consumer URL under base.
func NewPayload(base, batchID, productName, manufacturer string) (Payload, error) {
	if strings.TrimSpace(batchID) == "" {
		return Payload{}, fmt.Errorf("batch id is required")
	}
	return Payload{
		Type:            PayloadType,
		BatchID:         batchID,
		ProductName:     productName,
		Manufacturer:    manufacturer,
		VerificationURL: ConsumerURL(base, batchID),
	}, nil
}

// Encode renders p as compact JSON, the string handed to the QR encoder.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode provenance payload: %w", err)
	}
	return string(b), nil
}
