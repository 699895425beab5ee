package geo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ValidateRequest is the body of POST /geo/validate.
type ValidateRequest struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	HerbName       string   `json:"herbName,omitempty"`
	ExpectedRegion string   `json:"expectedRegion,omitempty"`
}

// RegionInfo answers GET /geo/region.
type RegionInfo struct {
	Point
	Region        string `json:"region"`
	WithinCountry bool   `json:"withinCountry"`
	Hotspot       bool   `json:"hotspot"`
}

// ParsePoint parses "lat,lng" in decimal degrees. Range is not checked.
func ParsePoint(s string) (Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("point %q: expected lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: bad latitude: %w", s, err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: bad longitude: %w", s, err)
	}
	return Point{Latitude: la, Longitude: ln}, nil
}

// NewRouter returns the geo reference routes, meant to be mounted at /geo.
// They read only the static tables and need no identity.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", validateHandler)
	r.Get("/region", regionHandler)
	r.Get("/distance", distanceHandler)
	r.Get("/regions", regionsHandler)
	r.Get("/herbs", herbsHandler)
	r.Get("/herbs/{herb}/regions", herbRegionsHandler)
	return r
}

func validateHandler(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	p := Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	writeJSON(w, http.StatusOK, ValidateCollectionLocation(p, req.HerbName, req.ExpectedRegion))
}

func regionHandler(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !IsValidCoordinate(p) {
		writeError(w, http.StatusBadRequest, ErrInvalidCoordinate)
		return
	}
	writeJSON(w, http.StatusOK, RegionInfo{
		Point:         p,
		Region:        ResolveRegion(p),
		WithinCountry: IsValidCountryCoordinate(p),
		Hotspot:       IsBiodiversityHotspot(p),
	})
}

func pointFromQuery(r *http.Request) (Point, error) {
	q := r.URL.Query()
	if at := q.Get("at"); at != "" {
		return ParsePoint(at)
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return Point{}, fmt.Errorf("lat: expected decimal degrees")
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return Point{}, fmt.Errorf("lng: expected decimal degrees")
	}
	return Point{Latitude: lat, Longitude: lng}, nil
}

func distanceHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := ParsePoint(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := ParsePoint(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	km, ok := DistanceKm(from, to)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrInvalidCoordinate)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":       from,
		"to":         to,
		"distanceKm": km,
	})
}

func regionsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"country":  Country(),
		"regions":  Regions(),
		"hotspots": HotspotRegions(),
	})
}

func herbsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Herbs())
}

func herbRegionsHandler(w http.ResponseWriter, r *http.Request) {
	herb := chi.URLParam(r, "herb")
	regions := GrowingRegions(herb)
	known := regions != nil
	if regions == nil {
		regions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"herb":    NormalizeKey(herb),
		"known":   known,
		"regions": regions,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": "bad_request", "message": message})
}
