package property

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Repository provides CRUD operations for properties.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a property repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const upsertSQL = `INSERT INTO properties
	(token_id, name, address, city, country, latitude, longitude, geohash, valuation, owner, metadata_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(token_id) DO UPDATE SET
		name = excluded.name,
		address = excluded.address,
		city = excluded.city,
		country = excluded.country,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		geohash = excluded.geohash,
		valuation = excluded.valuation,
		owner = excluded.owner,
		metadata_json = excluded.metadata_json,
		updated_at = CURRENT_TIMESTAMP`

// Upsert inserts a property or refreshes the row with the same token ID,
// and returns the stored record. The geohash is derived from the location.
func (r *Repository) Upsert(p *Property) (*Property, error) {
	if p.TokenID == "" {
		return nil, fmt.Errorf("token id is required")
	}
	if p.Owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if p.Valuation < 0 {
		return nil, fmt.Errorf("valuation must not be negative, got %d", p.Valuation)
	}

	metadata := p.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	hash := ""
	if p.Location.Latitude != nil && p.Location.Longitude != nil {
		hash = Geohash(*p.Location.Latitude, *p.Location.Longitude)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx, "upserting property")

	if _, err := tx.Exec(upsertSQL,
		p.TokenID, p.Name,
		p.Location.Address, p.Location.City, p.Location.Country,
		p.Location.Latitude, p.Location.Longitude, hash,
		p.Valuation, p.Owner, string(metadata),
	); err != nil {
		return nil, fmt.Errorf("upserting property %s: %w", p.TokenID, err)
	}

	var id int64
	if err := tx.QueryRow("SELECT id FROM properties WHERE token_id = ?", p.TokenID).Scan(&id); err != nil {
		return nil, fmt.Errorf("reading property %s: %w", p.TokenID, err)
	}
	if err := withdrawStaleOffers(tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing property %s: %w", p.TokenID, err)
	}

	return r.GetByTokenID(p.TokenID)
}

func rollback(tx *sql.Tx, action string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("rolling back", "action", action, "err", err)
	}
}

// GetByID returns a property by its local ID.
func (r *Repository) GetByID(id int64) (*Property, error) {
	row := r.db.QueryRow(fmt.Sprintf("SELECT %s FROM properties WHERE id = ?", selectColumns), id)

	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying property %d: %w", id, err)
	}

	return p, nil
}

// GetByTokenID returns a property by its on-chain token ID.
func (r *Repository) GetByTokenID(tokenID string) (*Property, error) {
	row := r.db.QueryRow(fmt.Sprintf("SELECT %s FROM properties WHERE token_id = ?", selectColumns), tokenID)

	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying token %s: %w", tokenID, err)
	}

	return p, nil
}

// Sort orders for List.
const (
	SortToken         = "token"
	SortNewest        = "newest"
	SortValuationAsc  = "valuation_asc"
	SortValuationDesc = "valuation_desc"
	SortName          = "name"
)

var sortClauses = map[string]string{
	"":                "CAST(token_id AS INTEGER), token_id",
	SortToken:         "CAST(token_id AS INTEGER), token_id",
	SortNewest:        "created_at DESC, id DESC",
	SortValuationAsc:  "valuation ASC, id",
	SortValuationDesc: "valuation DESC, id",
	SortName:          "name COLLATE NOCASE, id",
}

// ValidSort reports whether s is a known sort order.
func ValidSort(s string) bool {
	_, ok := sortClauses[s]
	return ok
}

// ListOptions controls filtering for List.
type ListOptions struct {
	Owner        string // case-insensitive address
	City         string // case-insensitive
	MinValuation *int64
	MaxValuation *int64
	Near         string // geohash prefix
	Sort         string
	Limit        int // 0 = no limit
}

// List returns properties matching opts.
func (r *Repository) List(opts ListOptions) ([]*Property, error) {
	orderBy, ok := sortClauses[opts.Sort]
	if !ok {
		return nil, fmt.Errorf("invalid sort: %s", opts.Sort)
	}

	query := fmt.Sprintf("SELECT %s FROM properties", selectColumns)
	var args []interface{}
	var conditions []string

	if opts.Owner != "" {
		conditions = append(conditions, "LOWER(owner) = LOWER(?)")
		args = append(args, opts.Owner)
	}
	if opts.City != "" {
		conditions = append(conditions, "LOWER(city) = LOWER(?)")
		args = append(args, opts.City)
	}
	if opts.MinValuation != nil {
		conditions = append(conditions, "valuation >= ?")
		args = append(args, *opts.MinValuation)
	}
	if opts.MaxValuation != nil {
		conditions = append(conditions, "valuation <= ?")
		args = append(args, *opts.MaxValuation)
	}
	if opts.Near != "" {
		conditions = append(conditions, "geohash != '' AND geohash LIKE ?")
		args = append(args, strings.ToLower(opts.Near)+"%")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var properties []*Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating properties: %w", err)
	}

	return properties, nil
}

// UpdateOwner records a new owner for a property.
func (r *Repository) UpdateOwner(id int64, owner string) error {
	if owner == "" {
		return fmt.Errorf("owner is required")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx, "updating owner")

	if err := updateOwner(tx, id, owner); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing owner: %w", err)
	}
	return nil
}

// updateOwner sets the owner and withdraws offers made to the previous one.
func updateOwner(tx *sql.Tx, id int64, owner string) error {
	result, err := tx.Exec(
		"UPDATE properties SET owner = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		owner, id,
	)
	if err != nil {
		return fmt.Errorf("updating owner: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("property %d: %w", id, ErrNotFound)
	}

	return withdrawStaleOffers(tx, id)
}

// withdrawStaleOffers cancels pending sales on property id whose seller is
// no longer its owner.
func withdrawStaleOffers(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`UPDATE sales SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE property_id = ? AND status = 'pending'
		AND LOWER(seller) != (SELECT LOWER(owner) FROM properties WHERE id = ?)`,
		id, id,
	); err != nil {
		return fmt.Errorf("withdrawing stale offers on property %d: %w", id, err)
	}
	return nil
}

// TransferOwner sets the owner of property id inside tx. Sales use it to
// move ownership atomically with their status change.
func TransferOwner(tx *sql.Tx, id int64, owner string) error {
	return updateOwner(tx, id, owner)
}

// DeleteByTokenID removes the local copy of a burned token. Missing rows are not an error.
func (r *Repository) DeleteByTokenID(tokenID string) error {
	if _, err := r.db.Exec("DELETE FROM properties WHERE token_id = ?", tokenID); err != nil {
		return fmt.Errorf("deleting token %s: %w", tokenID, err)
	}
	return nil
}

// Stats summarizes the listed properties.
type Stats struct {
	Count            int64 `json:"count"`
	Owners           int64 `json:"owners"`
	Cities           int64 `json:"cities"`
	TotalValuation   int64 `json:"total_valuation"`
	AverageValuation int64 `json:"average_valuation"`
	MinValuation     int64 `json:"min_valuation"`
	MaxValuation     int64 `json:"max_valuation"`
}

// Stats returns aggregate figures over all properties.
func (r *Repository) Stats() (*Stats, error) {
	var s Stats
	err := r.db.QueryRow(`SELECT
		COUNT(*),
		COUNT(DISTINCT LOWER(owner)),
		COUNT(DISTINCT CASE WHEN city != '' THEN LOWER(city) END),
		COALESCE(SUM(valuation), 0),
		COALESCE(MIN(valuation), 0),
		COALESCE(MAX(valuation), 0)
		FROM properties`).Scan(&s.Count, &s.Owners, &s.Cities, &s.TotalValuation, &s.MinValuation, &s.MaxValuation)
	if err != nil {
		return nil, fmt.Errorf("querying property stats: %w", err)
	}
	if s.Count > 0 {
		s.AverageValuation = s.TotalValuation / s.Count
	}
	return &s, nil
}
