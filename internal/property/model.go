// Package property provides the tokenized property model and data access.
package property

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a property does not exist locally.
var ErrNotFound = errors.New("property not found")

// Location is where a property sits.
type Location struct {
	Address   string   `json:"address"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Property is a tokenized real-estate record mirrored from the chain.
type Property struct {
	ID        int64           `json:"id"`
	TokenID   string          `json:"token_id"`
	Name      string          `json:"name"`
	Location  Location        `json:"location"`
	Geohash   string          `json:"geohash,omitempty"`
	Valuation int64           `json:"valuation"` // whole USD
	Owner     string          `json:"owner"`
	Metadata  json.RawMessage `json:"metadata"`

	// Derived from Metadata.
	Bedrooms     *float64 `json:"bedrooms,omitempty"`
	Bathrooms    *float64 `json:"bathrooms,omitempty"`
	Sqft         *int64   `json:"sqft,omitempty"`
	YearBuilt    *int64   `json:"year_built,omitempty"`
	PropertyType *string  `json:"property_type,omitempty"`
	Description  *string  `json:"description,omitempty"`
	PhotoURL     string   `json:"photo_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const selectColumns = `id, token_id, name, address, city, country, latitude, longitude, geohash, valuation, owner, metadata_json, created_at, updated_at`

// scanProperty scans a property from a database row.
func scanProperty(row interface{ Scan(...interface{}) error }) (*Property, error) {
	var p Property
	var lat, lng sql.NullFloat64
	var metadata string

	err := row.Scan(
		&p.ID, &p.TokenID, &p.Name,
		&p.Location.Address, &p.Location.City, &p.Location.Country,
		&lat, &lng, &p.Geohash,
		&p.Valuation, &p.Owner, &metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		p.Location.Latitude = &lat.Float64
	}
	if lng.Valid {
		p.Location.Longitude = &lng.Float64
	}
	p.Metadata = json.RawMessage(metadata)
	p.applyDetails(parseMetadata(p.Metadata))

	return &p, nil
}

func (p *Property) applyDetails(f metadataFields) {
	p.Bedrooms = f.Bedrooms
	p.Bathrooms = f.Bathrooms
	p.Sqft = f.Sqft
	p.YearBuilt = f.YearBuilt
	p.PropertyType = f.PropertyType
	p.Description = f.Description
	p.PhotoURL = f.PhotoURL
}
