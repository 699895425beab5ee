package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/herbtrace/herbtrace/pkg/audit"
	"github.com/herbtrace/herbtrace/pkg/authz"
	"github.com/herbtrace/herbtrace/pkg/filter"
	"github.com/herbtrace/herbtrace/pkg/geo"
	"github.com/herbtrace/herbtrace/pkg/ident"
	"github.com/herbtrace/herbtrace/pkg/metrics"
)

const (
	// idAttempts bounds how many fresh IDs Create mints before giving up on
	// duplicates.
	idAttempts = 3
	// ForActorLimit is how many recent records non-farmers get from
	// ListForActor.
	ForActorLimit = 50
	// DefaultRecentLimit applies when Recent is called without a limit.
	DefaultRecentLimit = 10
	// DefaultStatisticsWindow applies when Statistics is called without since.
	DefaultStatisticsWindow = 30 * 24 * time.Hour
)

// Operation names used in authorization errors, metrics and audit events.
const (
	OpCreate       = "create"
	OpUpdateStatus = "update-status"
	OpDelete       = "delete"
	OpListAll      = "list-all"
)

// Invalidator drops cached collection reads after a write.
type Invalidator interface {
	InvalidateCollections()
}

// Page selects a page of a list.
type Page struct {
	Size  int
	Token string
}

// Service is the collection lifecycle controller. It owns every mutation of
// a collection record and re-checks authorization on each call.
type Service struct {
	repo     Repository
	machine  *StatusMachine
	ids      *ident.Generator
	recorder audit.Recorder
	metrics  *metrics.Metrics
	cache    Invalidator
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStatusMachine replaces the default permissive machine.
func WithStatusMachine(m *StatusMachine) Option {
	return func(s *Service) { s.machine = m }
}

// WithGenerator sets the identifier generator.
func WithGenerator(g *ident.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithInvalidator sets the cache invalidated after writes.
func WithInvalidator(c Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		machine: NewStatusMachine(false),
		ids:     ident.New(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Machine returns the status machine in use.
func (s *Service) Machine() *StatusMachine {
	return s.machine
}

// CanUpdate reports whether actor may change rec's status: ADMIN and
// REGULATOR always, a FARMER only on records they collected.
func CanUpdate(actor authz.Actor, rec *Record) bool {
	if strings.TrimSpace(actor.ID) == "" {
		return false
	}
	switch actor.Role {
	case authz.RoleAdmin, authz.RoleRegulator:
		return true
	case authz.RoleFarmer:
		return rec.CollectorID == actor.ID
	}
	return false
}

// CanDelete reports whether actor may soft-delete rec: ADMIN always, a
// FARMER only on their own record while it is still COLLECTED.
func CanDelete(actor authz.Actor, rec *Record) bool {
	if strings.TrimSpace(actor.ID) == "" {
		return false
	}
	switch actor.Role {
	case authz.RoleAdmin:
		return true
	case authz.RoleFarmer:
		return rec.CollectorID == actor.ID && rec.Status == StatusCollected
	}
	return false
}

// Create validates req, mints an ID and stores a new COLLECTED record owned
// by actor. Location warnings and info are returned alongside the record and
// never block creation.
func (s *Service) Create(ctx context.Context, req *CreateRequest, actor authz.Actor) (*CreateResponse, error) {
	if !actor.Is(authz.RoleFarmer) {
		return nil, s.deny(ctx, actor, OpCreate, "", "only farmers can create collections")
	}
	if strings.TrimSpace(actor.ID) == "" {
		return nil, s.deny(ctx, actor, OpCreate, "", "actor identity is required")
	}

	date, err := validateCreate(req, s.now())
	if err != nil {
		if verr, ok := err.(*ValidationError); ok && hasGeoError(verr) {
			s.metrics.GeoValidation(false, 0)
		}
		return nil, err
	}

	p := req.Point()
	result := geo.ValidateCollectionLocation(p, req.HerbName, req.ExpectedRegion)
	s.metrics.GeoValidation(result.Valid, len(result.Warnings))
	if !result.Valid {
		return nil, &ValidationError{Errors: result.Errors}
	}

	rec := &Record{
		HerbName:           ident.Sanitize(req.HerbName),
		ScientificName:     ident.Sanitize(req.ScientificName),
		QuantityKg:         req.QuantityKg,
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		CollectionLocation: ident.Sanitize(req.CollectionLocation),
		CollectionDate:     date,
		CollectionTime:     req.CollectionTime,
		CollectorID:        actor.ID,
		CollectionMethod:   req.CollectionMethod,
		Season:             req.Season,
		WeatherConditions:  ident.Sanitize(req.WeatherConditions),
		SoilType:           ident.Sanitize(req.SoilType),
		AltitudeMeters:     req.AltitudeMeters,
		PlantPartUsed:      ident.Sanitize(req.PlantPartUsed),
		HarvestMaturity:    ident.Sanitize(req.HarvestMaturity),
		StorageConditions:  ident.Sanitize(req.StorageConditions),
		AdditionalNotes:    ident.Sanitize(req.AdditionalNotes),
		Status:             StatusCollected,
		Version:            1,
	}
	if result.DetectedRegion != nil {
		rec.DetectedRegion = *result.DetectedRegion
	}

	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("collection created",
		"collectionId", rec.ID,
		"herb", rec.HerbName,
		"region", rec.DetectedRegion,
		"collector", actor.ID,
		"warnings", len(result.Warnings),
	)
	s.metrics.CollectionCreated(rec.DetectedRegion)
	s.invalidate()
	s.record(ctx, &audit.Event{
		EventType:    audit.EventCollectionCreated,
		Actor:        actor.ID,
		ActorRole:    string(actor.Role),
		ResourceType: "collections",
		ResourceID:   rec.ID,
		Action:       OpCreate,
		NewValue: audit.JSONMap{
			"status":     string(rec.Status),
			"herbName":   rec.HerbName,
			"quantityKg": rec.QuantityKg,
			"region":     rec.DetectedRegion,
		},
		Metadata: validationMetadata(&result),
	})

	return &CreateResponse{Collection: rec, Validation: &result}, nil
}

// insert mints an ID and stores rec, retrying with a fresh ID on duplicates.
func (s *Service) insert(ctx context.Context, rec *Record) error {
	for attempt := 1; attempt <= idAttempts; attempt++ {
		id, err := s.ids.Generate(ident.KindCollection)
		if err != nil {
			return fmt.Errorf("generate collection id: %w", err)
		}
		rec.ID = id
		err = s.repo.Create(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return err
		}
		s.logger.Warn("collection id collision, retrying", "collectionId", id, "attempt", attempt)
	}
	return fmt.Errorf("allocate collection id after %d attempts: %w", idAttempts, ErrDuplicateID)
}

// UpdateStatus moves the record to status. COLLECTED is never a valid target.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, reason string, actor authz.Actor) (*Record, error) {
	if !status.Valid() {
		return nil, invalid(fmt.Sprintf("unknown status %q", status))
	}
	if status == StatusCollected {
		return nil, invalid("COLLECTED is the initial status and cannot be set")
	}

	if strings.TrimSpace(actor.ID) == "" {
		return nil, s.deny(ctx, actor, OpUpdateStatus, id, "actor identity is required")
	}

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanUpdate(actor, rec) {
		return nil, s.deny(ctx, actor, OpUpdateStatus, id, "only ADMIN, REGULATOR or the collecting farmer may change status")
	}

	return s.transition(ctx, rec, status, reason, actor, OpUpdateStatus, audit.EventCollectionStatusChanged)
}

// SoftDelete marks the record REJECTED. Records are never removed.
func (s *Service) SoftDelete(ctx context.Context, id string, actor authz.Actor) (*Record, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return nil, s.deny(ctx, actor, OpDelete, id, "actor identity is required")
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanDelete(actor, rec) {
		reason := "only ADMIN or the collecting farmer may delete"
		if actor.Is(authz.RoleFarmer) && rec.CollectorID == actor.ID {
			reason = fmt.Sprintf("record is %s; farmers may only delete records that are %s", rec.Status, StatusCollected)
		}
		return nil, s.deny(ctx, actor, OpDelete, id, reason)
	}

	return s.transition(ctx, rec, StatusRejected, "deleted", actor, OpDelete, audit.EventCollectionDeleted)
}

func (s *Service) transition(ctx context.Context, rec *Record, to Status, reason string, actor authz.Actor, op, eventType string) (*Record, error) {
	from := rec.Status
	if err := s.machine.ValidateTransition(from, to); err != nil {
		return nil, err
	}
	if from == to {
		return rec, nil
	}

	if err := s.repo.SetStatus(ctx, rec, to); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.metrics.Conflict()
			s.logger.Warn("stale collection write", "collectionId", rec.ID, "version", conflict.Version)
		}
		return nil, err
	}

	s.logger.Info("collection status changed",
		"collectionId", rec.ID,
		"from", from,
		"to", to,
		"actor", actor.String(),
	)
	s.metrics.StatusTransition(string(from), string(to))
	s.invalidate()
	s.record(ctx, &audit.Event{
		EventType:    eventType,
		Actor:        actor.ID,
		ActorRole:    string(actor.Role),
		ResourceType: "collections",
		ResourceID:   rec.ID,
		Action:       op,
		Reason:       reason,
		OldValue:     audit.JSONMap{"status": string(from)},
		NewValue:     audit.JSONMap{"status": string(to), "version": rec.Version},
	})
	return rec, nil
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{ID: id}
	}
	return rec, nil
}

// ListMine returns the records collected by actor.
func (s *Service) ListMine(ctx context.Context, actor authz.Actor, page Page) (*List, error) {
	return s.list(ctx, Query{CollectorID: actor.ID, PageSize: page.Size, PageToken: page.Token})
}

// ListAll returns every record, optionally narrowed by a filter expression.
// Only ADMIN and REGULATOR may call it.
func (s *Service) ListAll(ctx context.Context, actor authz.Actor, filterExpr string, page Page) (*List, error) {
	if !authz.OversightRoles.Contains(actor.Role) {
		return nil, s.deny(ctx, actor, OpListAll, "", "only ADMIN or REGULATOR may list all collections")
	}
	f, err := compileFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, Query{Filter: f, PageSize: page.Size, PageToken: page.Token})
}

// ListForActor is the default listing: a farmer's own records, a filtered
// page for oversight roles that pass a filter, and the most recent records
// for everyone else.
func (s *Service) ListForActor(ctx context.Context, actor authz.Actor, filterExpr string, page Page) (*List, error) {
	if actor.Is(authz.RoleFarmer) {
		f, err := compileFilter(filterExpr)
		if err != nil {
			return nil, err
		}
		return s.list(ctx, Query{CollectorID: actor.ID, Filter: f, PageSize: page.Size, PageToken: page.Token})
	}
	if strings.TrimSpace(filterExpr) != "" {
		return s.ListAll(ctx, actor, filterExpr, page)
	}
	records, err := s.repo.Recent(ctx, ForActorLimit)
	if err != nil {
		return nil, err
	}
	return &List{Items: records, Size: len(records)}, nil
}

// Search matches term against herb name, scientific name and location,
// ignoring case.
func (s *Service) Search(ctx context.Context, term string, page Page) (*List, error) {
	if strings.TrimSpace(term) == "" {
		return nil, invalid("search term is required")
	}
	return s.list(ctx, Query{Search: term, PageSize: page.Size, PageToken: page.Token})
}

// ListByStatus returns records in status.
func (s *Service) ListByStatus(ctx context.Context, status Status, page Page) (*List, error) {
	if !status.Valid() {
		return nil, invalid(fmt.Sprintf("unknown status %q", status))
	}
	return s.list(ctx, Query{Status: status, PageSize: page.Size, PageToken: page.Token})
}

// ListByHerb returns records of one herb, ignoring case.
func (s *Service) ListByHerb(ctx context.Context, herb string, page Page) (*List, error) {
	if strings.TrimSpace(herb) == "" {
		return nil, invalid("herb name is required")
	}
	return s.list(ctx, Query{HerbName: strings.TrimSpace(herb), PageSize: page.Size, PageToken: page.Token})
}

// ListByLocation returns records whose location text contains location.
func (s *Service) ListByLocation(ctx context.Context, location string, page Page) (*List, error) {
	if strings.TrimSpace(location) == "" {
		return nil, invalid("location is required")
	}
	return s.list(ctx, Query{Location: location, PageSize: page.Size, PageToken: page.Token})
}

// Recent returns the most recently created records.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.repo.Recent(ctx, limit)
}

// DistinctHerbNames returns every herb name on record.
func (s *Service) DistinctHerbNames(ctx context.Context) ([]string, error) {
	return s.repo.DistinctHerbNames(ctx)
}

// DistinctLocations returns every location text on record.
func (s *Service) DistinctLocations(ctx context.Context) ([]string, error) {
	return s.repo.DistinctLocations(ctx)
}

// Statistics returns a farmer's own totals, or system-wide totals and
// per-herb and per-region breakdowns since the given time for other roles.
// A nil since means the last 30 days.
func (s *Service) Statistics(ctx context.Context, actor authz.Actor, since *time.Time) (*Statistics, error) {
	if actor.Is(authz.RoleFarmer) {
		count, total, err := s.repo.Totals(ctx, actor.ID, nil)
		if err != nil {
			return nil, err
		}
		return &Statistics{TotalCollections: count, TotalQuantityKg: total}, nil
	}

	if since == nil {
		t := s.now().Add(-DefaultStatisticsWindow)
		since = &t
	}
	count, total, err := s.repo.Totals(ctx, "", since)
	if err != nil {
		return nil, err
	}
	byHerb, err := s.repo.ByHerb(ctx, since)
	if err != nil {
		return nil, err
	}
	byRegion, err := s.repo.ByRegion(ctx, since)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		TotalCollections: count,
		TotalQuantityKg:  total,
		Since:            since,
		ByHerb:           byHerb,
		ByRegion:         byRegion,
	}, nil
}

func (s *Service) list(ctx context.Context, q Query) (*List, error) {
	records, next, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return &List{Items: records, NextPageToken: next, Size: len(records)}, nil
}

func compileFilter(expr string) (*filter.Filter, error) {
	f, err := filter.Compile(expr, FilterSchema)
	if err != nil {
		return nil, invalid(err.Error())
	}
	return f, nil
}

// deny counts, logs and audits a rejected call and returns the error.
func (s *Service) deny(ctx context.Context, actor authz.Actor, op, id, reason string) error {
	s.metrics.Denied(op)
	s.logger.Warn("collection operation denied",
		"operation", op,
		"collectionId", id,
		"actor", actor.String(),
		"reason", reason,
	)
	s.record(ctx, &audit.Event{
		EventType:    audit.EventAccessDenied,
		Actor:        actor.ID,
		ActorRole:    string(actor.Role),
		ResourceType: "collections",
		ResourceID:   id,
		Action:       op,
		Outcome:      audit.OutcomeDenied,
		Reason:       reason,
	})
	return &AuthorizationError{Operation: op, Reason: reason}
}

// record appends an audit event. Failures are logged and never fail the
// operation.
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Error("failed to record audit event",
			"eventType", event.EventType,
			"resourceId", event.ResourceID,
			"error", err,
		)
	}
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.InvalidateCollections()
	}
}

func validationMetadata(r *geo.ValidationResult) audit.JSONMap {
	if len(r.Warnings) == 0 && len(r.Info) == 0 {
		return nil
	}
	return audit.JSONMap{"warnings": r.Warnings, "info": r.Info}
}
