package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/herbtrace/herbtrace/pkg/filter"
)

// Page size bounds for list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// FilterSchema lists the properties a ?filter= expression may reference.
var FilterSchema = filter.Schema{
	"id":                 {Column: "id", Type: filter.TypeString},
	"herbName":           {Column: "herb_name", Type: filter.TypeString},
	"scientificName":     {Column: "scientific_name", Type: filter.TypeString},
	"status":             {Column: "status", Type: filter.TypeString},
	"quantityKg":         {Column: "quantity_kg", Type: filter.TypeNumber},
	"detectedRegion":     {Column: "detected_region", Type: filter.TypeString},
	"collectionLocation": {Column: "collection_location", Type: filter.TypeString},
	"collectorId":        {Column: "collector_id", Type: filter.TypeString},
	"collectionMethod":   {Column: "collection_method", Type: filter.TypeString},
	"season":             {Column: "season", Type: filter.TypeString},
	"latitude":           {Column: "latitude", Type: filter.TypeNumber},
	"longitude":          {Column: "longitude", Type: filter.TypeNumber},
	"altitudeMeters":     {Column: "altitude_meters", Type: filter.TypeNumber},
}

// Query selects records for a list call. Zero fields do not constrain.
type Query struct {
	CollectorID string
	Status      Status
	HerbName    string
	Location    string
	Search      string
	Filter      *filter.Filter
	PageSize    int
	PageToken   string
}

// Repository is the persistence collaborator of the Service.
type Repository interface {
	// Create inserts rec. It returns ErrDuplicateID if the ID is taken.
	Create(ctx context.Context, rec *Record) error
	// Get returns the record with id, or nil if none exists.
	Get(ctx context.Context, id string) (*Record, error)
	// SetStatus writes status to rec if its version is unchanged, then
	// updates rec in place. A stale version yields *ConflictError.
	SetStatus(ctx context.Context, rec *Record, status Status) error
	List(ctx context.Context, q Query) ([]Record, string, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	DistinctHerbNames(ctx context.Context) ([]string, error)
	DistinctLocations(ctx context.Context) ([]string, error)
	Totals(ctx context.Context, collectorID string, since *time.Time) (int64, float64, error)
	ByHerb(ctx context.Context, since *time.Time) ([]HerbStat, error)
	ByRegion(ctx context.Context, since *time.Time) ([]RegionStat, error)
}

// Store is the GORM-backed Repository.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models returns the tables owned by the store.
func (s *Store) Models() []any {
	return []any{&Record{}}
}

// AutoMigrate creates or updates the collections table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(s.Models()...); err != nil {
		return fmt.Errorf("auto-migrate collections: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Create inserts rec. The insert is a no-op on an existing ID, which is
// reported as ErrDuplicateID.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return fmt.Errorf("create collection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateID
	}
	return nil
}

// Get returns the record with id, or nil, nil if none exists.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return &rec, nil
}

// SetStatus performs a versioned update of the record's status.
func (s *Store) SetStatus(ctx context.Context, rec *Record, status Status) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("update collection status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &ConflictError{ID: rec.ID, Version: rec.Version}
	}
	rec.Status = status
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// List returns a page of records, newest ID first. pageToken is the ID of the
// last record of the previous page; pass "" for the first page.
func (s *Store) List(ctx context.Context, q Query) ([]Record, string, error) {
	pageSize := clampPageSize(q.PageSize)

	query := s.db.WithContext(ctx).Model(&Record{})
	if q.CollectorID != "" {
		query = query.Where("collector_id = ?", q.CollectorID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.HerbName != "" {
		query = query.Where("LOWER(herb_name) = LOWER(?)", q.HerbName)
	}
	if loc := strings.TrimSpace(q.Location); loc != "" {
		query = query.Where("LOWER(collection_location) LIKE ? ESCAPE '!'", containsPattern(loc))
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := containsPattern(term)
		query = query.Where(
			"LOWER(herb_name) LIKE ? ESCAPE '!' OR LOWER(scientific_name) LIKE ? ESCAPE '!' OR LOWER(collection_location) LIKE ? ESCAPE '!'",
			like, like, like,
		)
	}
	if !q.Filter.Empty() {
		query = query.Scopes(q.Filter.Scope())
	}
	if q.PageToken != "" {
		query = query.Where("id < ?", q.PageToken)
	}

	var records []Record
	if err := query.Order("id DESC").Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list collections: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ID
		records = records[:pageSize]
	}
	return records, nextToken, nil
}

// Recent returns up to limit records, most recently created first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(clampPageSize(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list recent collections: %w", err)
	}
	return records, nil
}

// DistinctHerbNames returns every herb name on record, sorted.
func (s *Store) DistinctHerbNames(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "herb_name")
}

// DistinctLocations returns every non-empty location text on record, sorted.
func (s *Store) DistinctLocations(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "collection_location")
}

func (s *Store) distinct(ctx context.Context, column string) ([]string, error) {
	values := []string{}
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where(column+" <> ''").
		Distinct(column).
		Order(column).
		Pluck(column, &values).Error
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	return values, nil
}

// Totals returns the record count and total quantity, optionally restricted
// to one collector and to records collected on or after since.
func (s *Store) Totals(ctx context.Context, collectorID string, since *time.Time) (int64, float64, error) {
	var row struct {
		Count int64
		Total float64
	}
	query := s.db.WithContext(ctx).Model(&Record{}).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity_kg), 0) AS total")
	if collectorID != "" {
		query = query.Where("collector_id = ?", collectorID)
	}
	if since != nil {
		query = query.Where("collection_date >= ?", *since)
	}
	if err := query.Scan(&row).Error; err != nil {
		return 0, 0, fmt.Errorf("collection totals: %w", err)
	}
	return row.Count, row.Total, nil
}

// ByHerb aggregates count and quantity per herb, largest count first.
func (s *Store) ByHerb(ctx context.Context, since *time.Time) ([]HerbStat, error) {
	stats := []HerbStat{}
	query := s.db.WithContext(ctx).Model(&Record{}).
		Select("herb_name, COUNT(*) AS count, COALESCE(SUM(quantity_kg), 0) AS total_quantity")
	if since != nil {
		query = query.Where("collection_date >= ?", *since)
	}
	err := query.Group("herb_name").Order("count DESC").Order("herb_name").Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("collection stats by herb: %w", err)
	}
	return stats, nil
}

// ByRegion aggregates count and quantity per detected region, largest count
// first.
func (s *Store) ByRegion(ctx context.Context, since *time.Time) ([]RegionStat, error) {
	stats := []RegionStat{}
	query := s.db.WithContext(ctx).Model(&Record{}).
		Select("detected_region AS region, COUNT(*) AS count, COALESCE(SUM(quantity_kg), 0) AS total_quantity")
	if since != nil {
		query = query.Where("collection_date >= ?", *since)
	}
	err := query.Group("detected_region").Order("count DESC").Order("detected_region").Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("collection stats by region: %w", err)
	}
	return stats, nil
}

// likeEscaper makes user text literal inside a LIKE pattern. '!' is the
// escape character because a backslash needs dialect-specific quoting.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern is a case-insensitive substring pattern for term.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
