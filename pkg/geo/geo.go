// Package geo validates harvest coordinates against static reference data:
// a national bounding box, approximate region boxes, herb growing regions and
// biodiversity hotspots.
//
// Structural problems (coordinates out of range or outside the country) are
// errors. Plausibility problems (unexpected region, unusual herb for the
// region, sensitive ecology) are advisory and never invalidate a location.
package geo

import (
	"fmt"
	"math"
	"strings"
)

const (
	// Unknown is returned by ResolveRegion when no region box matches.
	// It is a normal outcome, not a failure.
	Unknown = "UNKNOWN"

	// EarthRadiusKm is the mean Earth radius used by DistanceKm.
	EarthRadiusKm = 6371.0

	// InvalidDistance is returned by DistanceKm alongside ok=false.
	InvalidDistance = -1.0
)

// Messages emitted by ValidateCollectionLocation.
const (
	ErrInvalidCoordinate = "invalid coordinate format"
	ErrOutsideCountry    = "coordinates outside country bounds"
	InfoHotspot          = "location is in a biodiversity hotspot; ensure sustainable collection practices"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// String renders the point as "lat,lng".
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// ValidationResult is the outcome of ValidateCollectionLocation. Errors always
// imply Valid=false; warnings and info are advisory.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	DetectedRegion *string  `json:"detectedRegion"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	Info           []string `json:"info"`
}

func newResult() ValidationResult {
	return ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
		Info:     []string{},
	}
}

// IsValidCoordinate reports whether p is within the global latitude and
// longitude ranges. NaN values are invalid.
func IsValidCoordinate(p Point) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// IsValidCountryCoordinate reports whether p is a valid coordinate inside the
// national bounding box. The box is an approximation; points near the border
// can be misclassified.
func IsValidCountryCoordinate(p Point) bool {
	return IsValidCoordinate(p) && defaultTables.country.Contains(p)
}

// ResolveRegion returns the name of the first region box containing p, or
// Unknown when p is outside the country or falls between boxes.
func ResolveRegion(p Point) string {
	if !IsValidCountryCoordinate(p) {
		return Unknown
	}
	for _, r := range defaultTables.regions {
		if r.Contains(p) {
			return r.Name
		}
	}
	return Unknown
}

// IsHerbCompatibleWithRegion reports whether herb is conventionally grown in
// region. Herbs absent from the affinity table are compatible everywhere.
func IsHerbCompatibleWithRegion(herb, region string) bool {
	set, ok := defaultTables.herbSets[NormalizeKey(herb)]
	if !ok {
		return true
	}
	return set.Contains(NormalizeKey(region))
}

// GrowingRegions returns the recommended regions for herb, or nil if the
// herb is not in the affinity table.
func GrowingRegions(herb string) []string {
	regions, ok := defaultTables.herbRegions[NormalizeKey(herb)]
	if !ok {
		return nil
	}
	return append([]string(nil), regions...)
}

// DistanceKm returns the great-circle distance between a and b using the
// haversine formula. If either point is out of global range it returns
// (InvalidDistance, false).
func DistanceKm(a, b Point) (float64, bool) {
	if !IsValidCoordinate(a) || !IsValidCoordinate(b) {
		return InvalidDistance, false
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c, true
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// IsBiodiversityHotspot reports whether p resolves to a region flagged as
// ecologically sensitive. Unknown is never a hotspot.
func IsBiodiversityHotspot(p Point) bool {
	region := ResolveRegion(p)
	if region == Unknown {
		return false
	}
	return defaultTables.hotspots.Contains(NormalizeKey(region))
}

// ValidateCollectionLocation runs the full location check for a harvest.
// herb and expectedRegion are optional; pass "" to skip those checks.
//
// Steps run in order and stop at the first structural failure:
//  1. global range check (error)
//  2. national box check (error)
//  3. region resolution
//  4. expected region mismatch (warning)
//  5. herb/region mismatch (warning)
//  6. hotspot (info)
func ValidateCollectionLocation(p Point, herb, expectedRegion string) ValidationResult {
	result := newResult()

	if !IsValidCoordinate(p) {
		result.Errors = append(result.Errors, ErrInvalidCoordinate)
		return result
	}
	if !IsValidCountryCoordinate(p) {
		result.Errors = append(result.Errors, ErrOutsideCountry)
		return result
	}

	detected := ResolveRegion(p)
	result.DetectedRegion = &detected

	if strings.TrimSpace(expectedRegion) != "" && NormalizeKey(expectedRegion) != NormalizeKey(detected) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("expected region %s, but coordinates indicate %s", expectedRegion, detected))
	}

	if strings.TrimSpace(herb) != "" && !IsHerbCompatibleWithRegion(herb, detected) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s is not commonly grown in %s; recommended regions: %s",
				herb, detected, strings.Join(GrowingRegions(herb), ", ")))
	}

	if IsBiodiversityHotspot(p) {
		result.Info = append(result.Info, InfoHotspot)
	}

	result.Valid = true
	return result
}
