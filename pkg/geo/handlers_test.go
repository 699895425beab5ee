package geo

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	NewRouter().ServeHTTP(rec, req)
	return rec
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(" 28.6, 77.2 ")
	require.NoError(t, err)
	assert.Equal(t, delhi, p)

	for _, bad := range []string{"", "28.6", "x,77", "28.6,y"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantErrors []string
		warnings   int
	}{
		{"delhi ashwagandha warns", `{"latitude":28.6,"longitude":77.2,"herbName":"Ashwagandha"}`, http.StatusOK, true, []string{}, 1},
		{"outside country", `{"latitude":51.5,"longitude":-0.12}`, http.StatusOK, false, []string{ErrOutsideCountry}, 0},
		{"invalid coordinate", `{"latitude":95,"longitude":0}`, http.StatusOK, false, []string{ErrInvalidCoordinate}, 0},
		{"missing longitude", `{"latitude":28.6}`, http.StatusBadRequest, false, nil, 0},
		{"malformed", `{`, http.StatusBadRequest, false, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, "/validate", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res ValidationResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantErrors, res.Errors)
			assert.Len(t, res.Warnings, tt.warnings)
		})
	}
}

func TestRegionHandler(t *testing.T) {
	rec := serve(t, http.MethodGet, "/region?lat=10.0&lng=76.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info RegionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "KERALA", info.Region)
	assert.True(t, info.WithinCountry)
	assert.True(t, info.Hotspot)

	rec = serve(t, http.MethodGet, "/region?at=51.5,-0.12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, Unknown, info.Region)
	assert.False(t, info.WithinCountry)

	assert.Equal(t, http.StatusBadRequest, serve(t, http.MethodGet, "/region?lat=abc&lng=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, http.MethodGet, "/region?lat=100&lng=1", "").Code)
}

func TestDistanceHandler(t *testing.T) {
	rec := serve(t, http.MethodGet, "/distance?from=28.6,77.2&to=19.076,72.8777", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		DistanceKm float64 `json:"distanceKm"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 1148, body.DistanceKm, 15)

	assert.Equal(t, http.StatusBadRequest, serve(t, http.MethodGet, "/distance?from=28.6,77.2&to=95,0", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, http.MethodGet, "/distance?from=28.6,77.2", "").Code)
}

func TestReferenceHandlers(t *testing.T) {
	rec := serve(t, http.MethodGet, "/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var regions struct {
		Regions  []Bounds `json:"regions"`
		Hotspots []string `json:"hotspots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regions))
	assert.Len(t, regions.Regions, 30)
	assert.Equal(t, "DELHI", regions.Regions[0].Name)
	assert.Contains(t, regions.Hotspots, "KERALA")

	rec = serve(t, http.MethodGet, "/herbs/Black_Pepper/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var herb struct {
		Herb    string   `json:"herb"`
		Known   bool     `json:"known"`
		Regions []string `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herb))
	assert.Equal(t, "BLACK_PEPPER", herb.Herb)
	assert.True(t, herb.Known)
	assert.Contains(t, herb.Regions, "KERALA")

	rec = serve(t, http.MethodGet, "/herbs/shatavari/regions", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herb))
	assert.False(t, herb.Known)
	assert.Empty(t, herb.Regions)

	rec = serve(t, http.MethodGet, "/herbs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var herbs map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herbs))
	assert.Len(t, herbs, 10)
}
