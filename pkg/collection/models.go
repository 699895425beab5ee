// Package collection implements the collection lifecycle controller: the
// record of a harvested herb batch, its status machine, persistence, and the
// role- and ownership-gated operations that create and advance it.
package collection

import (
	"fmt"
	"strings"
	"time"

	"github.com/herbtrace/herbtrace/pkg/geo"
)

// Status is the lifecycle state of a collection record.
type Status string

const (
	StatusCollected         Status = "COLLECTED"
	StatusInStorage         Status = "IN_STORAGE"
	StatusSentForProcessing Status = "SENT_FOR_PROCESSING"
	StatusProcessed         Status = "PROCESSED"
	StatusTested            Status = "TESTED"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusRecalled          Status = "RECALLED"
)

var allStatuses = []Status{
	StatusCollected, StatusInStorage, StatusSentForProcessing, StatusProcessed,
	StatusTested, StatusApproved, StatusRejected, StatusRecalled,
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a case-insensitive status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s is REJECTED or RECALLED.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusRecalled
}

// Method is how the plant material was harvested.
type Method string

const (
	MethodHandPicked  Method = "HAND_PICKED"
	MethodCuttingTool Method = "CUTTING_TOOL"
	MethodDigging     Method = "DIGGING"
	MethodShaking     Method = "SHAKING"
	MethodMechanical  Method = "MECHANICAL"
)

// Season is the harvest season.
type Season string

const (
	SeasonSpring  Season = "SPRING"
	SeasonSummer  Season = "SUMMER"
	SeasonMonsoon Season = "MONSOON"
	SeasonWinter  Season = "WINTER"
)

// Record is the persisted collection record. It is created once and only its
// status (and version) change afterwards.
type Record struct {
	ID                 string    `gorm:"primaryKey;column:id;type:varchar(32)" json:"id"`
	HerbName           string    `gorm:"column:herb_name;not null;index" json:"herbName"`
	ScientificName     string    `gorm:"column:scientific_name" json:"scientificName,omitempty"`
	QuantityKg         float64   `gorm:"column:quantity_kg;not null" json:"quantityKg"`
	Latitude           float64   `gorm:"column:latitude;not null" json:"latitude"`
	Longitude          float64   `gorm:"column:longitude;not null" json:"longitude"`
	CollectionLocation string    `gorm:"column:collection_location" json:"collectionLocation,omitempty"`
	DetectedRegion     string    `gorm:"column:detected_region;index" json:"detectedRegion"`
	CollectionDate     time.Time `gorm:"column:collection_date;not null" json:"collectionDate"`
	CollectionTime     string    `gorm:"column:collection_time" json:"collectionTime,omitempty"`
	CollectorID        string    `gorm:"column:collector_id;not null;index" json:"collectorId"`
	CollectionMethod   string    `gorm:"column:collection_method" json:"collectionMethod,omitempty"`
	Season             string    `gorm:"column:season" json:"season,omitempty"`
	WeatherConditions  string    `gorm:"column:weather_conditions" json:"weatherConditions,omitempty"`
	SoilType           string    `gorm:"column:soil_type" json:"soilType,omitempty"`
	AltitudeMeters     *float64  `gorm:"column:altitude_meters" json:"altitudeMeters,omitempty"`
	PlantPartUsed      string    `gorm:"column:plant_part_used" json:"plantPartUsed,omitempty"`
	HarvestMaturity    string    `gorm:"column:harvest_maturity" json:"harvestMaturity,omitempty"`
	StorageConditions  string    `gorm:"column:storage_conditions" json:"storageConditions,omitempty"`
	AdditionalNotes    string    `gorm:"column:additional_notes" json:"additionalNotes,omitempty"`
	Status             Status    `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Version            int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the database table name.
func (Record) TableName() string {
	return "collections"
}

// Point returns the record's coordinates.
func (r *Record) Point() geo.Point {
	return geo.Point{Latitude: r.Latitude, Longitude: r.Longitude}
}

// CreateRequest is the payload for creating a collection.
type CreateRequest struct {
	HerbName           string   `json:"herbName" validate:"notblank,max=120"`
	ScientificName     string   `json:"scientificName" validate:"max=200"`
	QuantityKg         float64  `json:"quantityKg" validate:"gt=0"`
	Latitude           *float64 `json:"latitude" validate:"required"`
	Longitude          *float64 `json:"longitude" validate:"required"`
	CollectionLocation string   `json:"collectionLocation" validate:"notblank,max=500"`
	ExpectedRegion     string   `json:"expectedRegion,omitempty" validate:"max=64"`
	CollectionDate     string   `json:"collectionDate" validate:"required,datetime=2006-01-02"`
	CollectionTime     string   `json:"collectionTime,omitempty" validate:"omitempty,datetime=15:04"`
	CollectionMethod   string   `json:"collectionMethod,omitempty" validate:"omitempty,oneof=HAND_PICKED CUTTING_TOOL DIGGING SHAKING MECHANICAL"`
	Season             string   `json:"season,omitempty" validate:"omitempty,oneof=SPRING SUMMER MONSOON WINTER"`
	WeatherConditions  string   `json:"weatherConditions,omitempty" validate:"max=200"`
	SoilType           string   `json:"soilType,omitempty" validate:"max=100"`
	AltitudeMeters     *float64 `json:"altitudeMeters,omitempty" validate:"omitempty,gte=-500,lte=9000"`
	PlantPartUsed      string   `json:"plantPartUsed,omitempty" validate:"max=100"`
	HarvestMaturity    string   `json:"harvestMaturity,omitempty" validate:"max=100"`
	StorageConditions  string   `json:"storageConditions,omitempty" validate:"max=200"`
	AdditionalNotes    string   `json:"additionalNotes,omitempty" validate:"max=2000"`
}

// Point returns the request's coordinates. Callers must have validated that
// both are present.
func (r *CreateRequest) Point() geo.Point {
	var p geo.Point
	if r.Latitude != nil {
		p.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		p.Longitude = *r.Longitude
	}
	return p
}

// StatusRequest is the payload for a status change.
type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// CreateResponse is a newly created record plus the advisory output of the
// location check.
type CreateResponse struct {
	Collection *Record               `json:"collection"`
	Validation *geo.ValidationResult `json:"validation"`
}

// List is a page of records.
type List struct {
	Items         []Record `json:"items"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
	Size          int      `json:"size"`
}

// HerbStat is an aggregate over one herb.
type HerbStat struct {
	HerbName      string  `json:"herbName"`
	Count         int64   `json:"count"`
	TotalQuantity float64 `json:"totalQuantityKg"`
}

// RegionStat is an aggregate over one detected region.
type RegionStat struct {
	Region        string  `json:"region"`
	Count         int64   `json:"count"`
	TotalQuantity float64 `json:"totalQuantityKg"`
}

// Statistics is the statistics view. Farmers get only their own totals;
// other roles get breakdowns since a date.
type Statistics struct {
	TotalCollections int64        `json:"totalCollections"`
	TotalQuantityKg  float64      `json:"totalQuantityKg"`
	Since            *time.Time   `json:"since,omitempty"`
	ByHerb           []HerbStat   `json:"byHerb,omitempty"`
	ByRegion         []RegionStat `json:"byRegion,omitempty"`
}
