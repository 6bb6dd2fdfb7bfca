package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/marketcart/catalog-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	ListProducts(ctx context.Context, vendorID string) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListVendors(ctx context.Context) ([]*domain.Vendor, error)
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	Close() error
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every new connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// RunMigrations applies the embedded schema and seed migrations.
func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `
	id, vendor_id, name, description, base_price, discounted_price, stock,
	bulk_price, bulk_min_units, large_quantity_price, large_quantity_min_units, created_at`

func (r *Repository) ListProducts(ctx context.Context, vendorID string) ([]*domain.Product, error) {
	query := `SELECT` + productColumns + ` FROM products`
	var args []any
	if vendorID != "" {
		query += ` WHERE vendor_id = ?`
		args = append(args, vendorID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+productColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) ListVendors(ctx context.Context) ([]*domain.Vendor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, delivery_range_km, is_online, is_approved
		FROM vendors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*domain.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return vendors, nil
}

func (r *Repository) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, delivery_range_km, is_online, is_approved
		FROM vendors
		WHERE id = ?
	`, id)

	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vendor %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	var (
		p                     domain.Product
		discounted, bulk, lrg decimal.NullDecimal
		bulkMin, largeMin     sql.NullInt64
	)
	err := s.Scan(
		&p.ID,
		&p.VendorID,
		&p.Name,
		&p.Description,
		&p.BasePrice,
		&discounted,
		&p.Stock,
		&bulk,
		&bulkMin,
		&lrg,
		&largeMin,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	p.DiscountedPrice = decimalPtr(discounted)
	p.BulkPrice = decimalPtr(bulk)
	p.BulkMinUnits = intPtr(bulkMin)
	p.LargeQuantityPrice = decimalPtr(lrg)
	p.LargeQuantityMinUnits = intPtr(largeMin)
	return &p, nil
}

func scanVendor(s scanner) (*domain.Vendor, error) {
	var (
		v                 domain.Vendor
		lat, lon, rangeKm sql.NullFloat64
	)
	err := s.Scan(&v.ID, &v.Name, &lat, &lon, &rangeKm, &v.IsOnline, &v.IsApproved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vendor: %w", err)
	}

	v.Latitude = floatPtr(lat)
	v.Longitude = floatPtr(lon)
	v.DeliveryRangeKm = floatPtr(rangeKm)
	return &v, nil
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
