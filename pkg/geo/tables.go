package geo

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Bounds is a named, axis-aligned latitude/longitude box.
type Bounds struct {
	Name   string  `yaml:"name" json:"name"`
	MinLat float64 `yaml:"min_lat" json:"minLat"`
	MaxLat float64 `yaml:"max_lat" json:"maxLat"`
	MinLng float64 `yaml:"min_lng" json:"minLng"`
	MaxLng float64 `yaml:"max_lng" json:"maxLng"`
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

type tableFile struct {
	Country  Bounds              `yaml:"country"`
	Regions  []Bounds            `yaml:"regions"`
	Herbs    map[string][]string `yaml:"herbs"`
	Hotspots map[string][]string `yaml:"hotspots"`
}

// tables is the parsed, read-only form of tables.yaml.
type tables struct {
	country Bounds
	regions []Bounds
	// herbRegions keeps table order for recommendations; herbSets answers
	// membership.
	herbRegions map[string][]string
	herbSets    map[string]mapset.Set[string]
	hotspots    mapset.Set[string]
}

var defaultTables = mustLoadTables(tablesYAML)

func mustLoadTables(data []byte) *tables {
	t, err := loadTables(data)
	if err != nil {
		panic(fmt.Sprintf("geo: invalid embedded tables: %v", err))
	}
	return t
}

func loadTables(data []byte) (*tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse geo tables: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("no regions defined")
	}

	t := &tables{
		country:     f.Country,
		regions:     f.Regions,
		herbRegions: make(map[string][]string, len(f.Herbs)),
		herbSets:    make(map[string]mapset.Set[string], len(f.Herbs)),
		hotspots:    mapset.NewThreadUnsafeSet[string](),
	}

	known := mapset.NewThreadUnsafeSet[string]()
	for _, r := range f.Regions {
		if r.MinLat > r.MaxLat || r.MinLng > r.MaxLng {
			return nil, fmt.Errorf("region %s has inverted bounds", r.Name)
		}
		known.Add(NormalizeKey(r.Name))
	}

	for herb, regions := range f.Herbs {
		set := mapset.NewThreadUnsafeSet[string]()
		ordered := make([]string, 0, len(regions))
		for _, r := range regions {
			key := NormalizeKey(r)
			if !known.Contains(key) {
				return nil, fmt.Errorf("herb %s references unknown region %s", herb, r)
			}
			set.Add(key)
			ordered = append(ordered, displayName(key))
		}
		k := NormalizeKey(herb)
		t.herbSets[k] = set
		t.herbRegions[k] = ordered
	}

	for group, regions := range f.Hotspots {
		for _, r := range regions {
			key := NormalizeKey(r)
			if !known.Contains(key) {
				return nil, fmt.Errorf("hotspot group %s references unknown region %s", group, r)
			}
			t.hotspots.Add(key)
		}
	}

	return t, nil
}

// NormalizeKey upper-cases s and replaces spaces with underscores, the form
// used for herb and region lookups.
func NormalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
}

func displayName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// Country returns the national bounding box.
func Country() Bounds {
	return defaultTables.country
}

// Regions returns a copy of the region table in resolution order.
func Regions() []Bounds {
	out := make([]Bounds, len(defaultTables.regions))
	copy(out, defaultTables.regions)
	return out
}

// Herbs returns the herb affinity table keyed by normalized herb name, with
// region display names in table order.
func Herbs() map[string][]string {
	out := make(map[string][]string, len(defaultTables.herbRegions))
	for k, v := range defaultTables.herbRegions {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// HotspotRegions returns the display names of all biodiversity hotspot
// regions, sorted.
func HotspotRegions() []string {
	keys := defaultTables.hotspots.ToSlice()
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = displayName(k)
	}
	return out
}
