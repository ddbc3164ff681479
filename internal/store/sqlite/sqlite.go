package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tariffsim/internal/model"
	"tariffsim/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertTradeRecords(ctx context.Context, records []model.TradeRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (
			iso3, sector, iso2, country, exports, etr, gdp, population, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(iso3, sector)
		DO UPDATE SET
			iso2 = excluded.iso2,
			country = excluded.country,
			exports = excluded.exports,
			etr = excluded.etr,
			gdp = excluded.gdp,
			population = excluded.population,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, record := range records {
		_, err = stmt.ExecContext(
			ctx,
			record.ISO3,
			record.Sector,
			record.ISO2,
			record.Country,
			nullable(record.Exports),
			nullable(record.ETR),
			nullable(record.GDP),
			nullable(record.Population),
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", record.ISO3, record.Sector, err)
		}
	}

	return tx.Commit()
}

// ListTradeRecords returns records in insertion order, or store.ErrNotFound
// when the table is empty.
func (s *Store) ListTradeRecords(ctx context.Context) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iso3, sector, iso2, country, exports, etr, gdp, population
		FROM trade_records
		ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.TradeRecord, 0)
	for rows.Next() {
		var record model.TradeRecord
		var exports, etr, gdp, population sql.NullFloat64
		if err := rows.Scan(&record.ISO3, &record.Sector, &record.ISO2, &record.Country, &exports, &etr, &gdp, &population); err != nil {
			return nil, err
		}
		record.Exports = fromNull(exports)
		record.ETR = fromNull(etr)
		record.GDP = fromNull(gdp)
		record.Population = fromNull(population)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, store.ErrNotFound
	}
	return results, nil
}

func (s *Store) UpsertHistory(ctx context.Context, points []model.HistoryPoint) (err error) {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO export_history (
			provider, iso3, partner, year, country, value_usd, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, iso3, partner, year)
		DO UPDATE SET
			country = excluded.country,
			value_usd = excluded.value_usd,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, point := range points {
		partner := point.Partner
		if partner == "" {
			partner = model.DefaultPartner
		}
		_, err = stmt.ExecContext(ctx, point.Provider, point.ISO3, partner, point.Year, point.Country, point.ValueUSD, now)
		if err != nil {
			return fmt.Errorf("upsert history %s/%d: %w", point.ISO3, point.Year, err)
		}
	}

	return tx.Commit()
}

// ListHistory returns history points, optionally for one provider.
func (s *Store) ListHistory(ctx context.Context, provider string) ([]model.HistoryPoint, error) {
	query := `
		SELECT provider, iso3, partner, year, country, value_usd
		FROM export_history
	`
	args := []any{}
	if strings.TrimSpace(provider) != "" {
		query += " WHERE provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY iso3, year"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.HistoryPoint, 0)
	for rows.Next() {
		var point model.HistoryPoint
		if err := rows.Scan(&point.Provider, &point.ISO3, &point.Partner, &point.Year, &point.Country, &point.ValueUSD); err != nil {
			return nil, err
		}
		results = append(results, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) ListHistoryYears(ctx context.Context, provider, iso3, partner string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year FROM export_history
		WHERE provider = ? AND iso3 = ? AND partner = ?
		ORDER BY year
	`, provider, iso3, partner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := make([]int, 0)
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return years, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS trade_records (
			iso3 TEXT NOT NULL,
			sector TEXT NOT NULL,
			iso2 TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			exports REAL,
			etr REAL,
			gdp REAL,
			population REAL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (iso3, sector)
		);`,
		`CREATE TABLE IF NOT EXISTS export_history (
			provider TEXT NOT NULL,
			iso3 TEXT NOT NULL,
			partner TEXT NOT NULL,
			year INTEGER NOT NULL,
			country TEXT NOT NULL DEFAULT '',
			value_usd REAL NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (provider, iso3, partner, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

func nullable(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func fromNull(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

var _ store.Store = (*Store)(nil)
