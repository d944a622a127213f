package sale

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/evcraddock/estate-market/internal/property"
)

// Repository provides storage for sales.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a sale repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, property_id, price, seller, buyer, status, tx_hash, created_at, updated_at`

func scanSale(row interface{ Scan(...interface{}) error }) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.PropertyID, &s.Price, &s.Seller, &s.Buyer, &s.Status, &s.TxHash, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create records a pending sale of a property from its current owner to buyer.
func (r *Repository) Create(propertyID int64, buyer string, price int64) (*Sale, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %d", ErrInvalid, price)
	}
	if buyer == "" {
		return nil, fmt.Errorf("%w: buyer is required", ErrInvalid)
	}

	var seller string
	err := r.db.QueryRow("SELECT owner FROM properties WHERE id = ?", propertyID).Scan(&seller)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", propertyID, property.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading property owner: %w", err)
	}
	if strings.EqualFold(seller, buyer) {
		return nil, fmt.Errorf("%w: buyer already owns property %d", ErrInvalid, propertyID)
	}

	id := uuid.NewString()
	if _, err := r.db.Exec(
		"INSERT INTO sales (id, property_id, price, seller, buyer, status) VALUES (?, ?, ?, ?, ?, ?)",
		id, propertyID, price, seller, buyer, StatusPending,
	); err != nil {
		return nil, fmt.Errorf("inserting sale: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a sale by ID.
func (r *Repository) GetByID(id string) (*Sale, error) {
	return getByID(r.db, id)
}

type queryRower interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func getByID(q queryRower, id string) (*Sale, error) {
	s, err := scanSale(q.QueryRow(fmt.Sprintf("SELECT %s FROM sales WHERE id = ?", selectColumns), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying sale %s: %w", id, err)
	}
	return s, nil
}

// ListOptions controls filtering for List.
type ListOptions struct {
	PropertyID int64
	Buyer      string // case-insensitive
	Seller     string // case-insensitive
	Status     Status // empty = all
	Limit      int    // 0 = no limit
}

// List returns sales matching opts, newest first.
func (r *Repository) List(opts ListOptions) ([]*Sale, error) {
	query := fmt.Sprintf("SELECT %s FROM sales", selectColumns)
	var args []interface{}
	var conditions []string

	if opts.PropertyID != 0 {
		conditions = append(conditions, "property_id = ?")
		args = append(args, opts.PropertyID)
	}
	if opts.Buyer != "" {
		conditions = append(conditions, "LOWER(buyer) = LOWER(?)")
		args = append(args, opts.Buyer)
	}
	if opts.Seller != "" {
		conditions = append(conditions, "LOWER(seller) = LOWER(?)")
		args = append(args, opts.Seller)
	}
	if opts.Status != "" {
		if !opts.Status.IsValid() {
			return nil, fmt.Errorf("invalid status: %q", opts.Status)
		}
		conditions = append(conditions, "status = ?")
		args = append(args, opts.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var sales []*Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		sales = append(sales, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sales: %w", err)
	}

	return sales, nil
}

// Complete settles a pending sale and transfers the property to the buyer
// in the same transaction. txHash may be empty.
func (r *Repository) Complete(id, txHash string) (*Sale, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			slog.Warn("rolling back sale completion", "sale_id", id, "err", rerr)
		}
	}()

	s, err := transition(tx, id, StatusCompleted, txHash)
	if err != nil {
		return nil, err
	}

	var owner string
	if err := tx.QueryRow("SELECT owner FROM properties WHERE id = ?", s.PropertyID).Scan(&owner); err != nil {
		return nil, fmt.Errorf("reading owner of property %d: %w", s.PropertyID, err)
	}
	if !strings.EqualFold(owner, s.Seller) {
		return nil, fmt.Errorf("seller %s no longer owns property %d: %w", s.Seller, s.PropertyID, ErrForbidden)
	}
	if err := property.TransferOwner(tx, s.PropertyID, s.Buyer); err != nil {
		return nil, fmt.Errorf("transferring property: %w", err)
	}

	// Competing offers on the same property can no longer settle.
	if _, err := tx.Exec(
		"UPDATE sales SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE property_id = ? AND status = ? AND id != ?",
		StatusCancelled, s.PropertyID, StatusPending, id,
	); err != nil {
		return nil, fmt.Errorf("cancelling competing sales: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sale: %w", err)
	}
	return r.GetByID(id)
}

// Cancel cancels a pending sale.
func (r *Repository) Cancel(id string) (*Sale, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			slog.Warn("rolling back sale cancellation", "sale_id", id, "err", rerr)
		}
	}()

	if _, err := transition(tx, id, StatusCancelled, ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sale: %w", err)
	}
	return r.GetByID(id)
}

// transition moves a pending sale to status and returns it as it was
// before the update.
func transition(tx *sql.Tx, id string, status Status, txHash string) (*Sale, error) {
	s, err := getByID(tx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return nil, fmt.Errorf("sale %s is %s: %w", id, s.Status, ErrNotPending)
	}

	if _, err := tx.Exec(
		"UPDATE sales SET status = ?, tx_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		status, txHash, id, StatusPending,
	); err != nil {
		return nil, fmt.Errorf("updating sale %s: %w", id, err)
	}
	return s, nil
}

// Stats returns counts per status and the completed sales volume.
func (r *Repository) Stats() (*Stats, error) {
	var s Stats
	err := r.db.QueryRow(`SELECT
		COUNT(CASE WHEN status = 'pending' THEN 1 END),
		COUNT(CASE WHEN status = 'completed' THEN 1 END),
		COUNT(CASE WHEN status = 'cancelled' THEN 1 END),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN price END), 0)
		FROM sales`).Scan(&s.Pending, &s.Completed, &s.Cancelled, &s.CompletedVolume)
	if err != nil {
		return nil, fmt.Errorf("querying sale stats: %w", err)
	}
	return &s, nil
}
