package provenance

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// QRResponse is a batch payload together with the exact string to encode.
type QRResponse struct {
	Payload Payload `json:"payload"`
	QRData  string  `json:"qrData"`
}

// NewRouter serves GET /{batchId}, returning the QR payload whose consumer
// link points under baseURL. productName and manufacturer are optional
// query parameters.
func NewRouter(baseURL string) chi.Router {
	r := chi.NewRouter()
	r.Get("/{batchId}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p, err := NewPayload(baseURL, chi.URLParam(r, "batchId"), q.Get("productName"), q.Get("manufacturer"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		data, err := p.Encode()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, QRResponse{Payload: p, QRData: data})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
