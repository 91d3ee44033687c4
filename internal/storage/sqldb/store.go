package sqldb

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/propertychat/internal/storage"
	"github.com/tjfontaine/propertychat/internal/storage/dialect"
)

// Store is a SQL implementation of storage.PriceStore and storage.Loader
// that supports multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var (
	_ storage.PriceStore = (*Store)(nil)
	_ storage.Loader     = (*Store)(nil)
)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres, mysql
	DSN    string // Data source name / connection string
}

// New opens the database and runs dialect initialization. The schema is
// not created; call EnsureSchema for that.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	return &Store{db: db, dialect: d}, nil
}

// NewSQLite opens a SQLite store and creates the schema.
func NewSQLite(dsn string) (*Store, error) {
	s, err := New(Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the price tables if they are absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	d := s.dialect
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS house_prices (
	date %s NOT NULL,
	region_name %s NOT NULL,
	average_price %s NOT NULL,
	PRIMARY KEY (region_name, date)
)`, d.DateType(), d.VarcharType(), d.RealType()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rental_prices (
	date %s NOT NULL,
	region_name %s NOT NULL,
	rent_all %s,
	rent_1bed %s,
	rent_2bed %s,
	rent_3bed %s,
	rent_4plus %s,
	PRIMARY KEY (region_name, date)
)`, d.DateType(), d.VarcharType(), d.RealType(), d.RealType(), d.RealType(), d.RealType(), d.RealType()),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Regions returns the distinct region names in the dataset's table.
func (s *Store) Regions(ctx context.Context, dataset storage.Dataset) ([]string, error) {
	table, err := dataset.Table()
	if err != nil {
		return nil, err
	}

	var names []string
	query := fmt.Sprintf(`SELECT DISTINCT region_name FROM %s ORDER BY region_name`, table)
	if err := s.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	return names, nil
}

// HousePrices averages sale prices per (month, region) over the months
// of r, ordered by month then region.
func (s *Store) HousePrices(ctx context.Context, r storage.DateRange, regions []string) ([]storage.PriceRow, error) {
	month := s.dialect.MonthExpr("date")
	query := fmt.Sprintf(`SELECT %s AS month, region_name, AVG(average_price) AS avg_price
FROM house_prices
WHERE date >= ? AND date < ? AND region_name IN (?)
GROUP BY %s, region_name
ORDER BY month ASC, region_name ASC`, month, month)

	query, args, err := sqlx.In(query, r.FromString(), r.UntilString(), regions)
	if err != nil {
		return nil, fmt.Errorf("failed to build price query: %w", err)
	}

	rows := []storage.PriceRow{}
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query house prices: %w", err)
	}
	return rows, nil
}

// HousePricesByMonth is the year/month/region variant of HousePrices.
func (s *Store) HousePricesByMonth(ctx context.Context, years, months []int, regions []string) ([]storage.PriceRow, error) {
	month := s.dialect.MonthExpr("date")
	query := fmt.Sprintf(`SELECT %s AS month, region_name, AVG(average_price) AS avg_price
FROM house_prices
WHERE %s IN (?) AND %s IN (?) AND region_name IN (?)
GROUP BY %s, region_name
ORDER BY month ASC, region_name ASC`, month, s.dialect.YearExpr("date"), s.dialect.MonthNumExpr("date"), month)

	query, args, err := sqlx.In(query, years, months, regions)
	if err != nil {
		return nil, fmt.Errorf("failed to build price query: %w", err)
	}

	rows := []storage.PriceRow{}
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query house prices: %w", err)
	}
	return rows, nil
}

// Rents returns one row per date for the selected bedroom column. The
// column name comes only from storage.Bedrooms.Column.
func (s *Store) Rents(ctx context.Context, r storage.DateRange, region string, bedrooms storage.Bedrooms) ([]storage.RentRow, error) {
	col, err := bedrooms.Column()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s AS obs_date, %s AS rent
FROM rental_prices
WHERE region_name = ? AND date >= ? AND date < ? AND %s IS NOT NULL
ORDER BY obs_date ASC`, s.dialect.DateExpr("date"), col, col)

	rows := []storage.RentRow{}
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), region, r.FromString(), r.UntilString()); err != nil {
		return nil, fmt.Errorf("failed to query rents: %w", err)
	}
	return rows, nil
}

// Affordable returns regions whose mean price over the range is strictly
// below maxPrice, cheapest first.
func (s *Store) Affordable(ctx context.Context, r storage.DateRange, maxPrice float64) ([]storage.AffordableRow, error) {
	query := `SELECT region_name, AVG(average_price) AS mean_price
FROM house_prices
WHERE date >= ? AND date < ?
GROUP BY region_name
HAVING AVG(average_price) < ?
ORDER BY mean_price ASC, region_name ASC`

	rows := []storage.AffordableRow{}
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), r.FromString(), r.UntilString(), maxPrice); err != nil {
		return nil, fmt.Errorf("failed to query affordable regions: %w", err)
	}
	return rows, nil
}

// InsertHousePrices upserts rows in a single transaction.
func (s *Store) InsertHousePrices(ctx context.Context, rows []storage.HousePrice) error {
	query := s.dialect.Rebind(`INSERT INTO house_prices (date, region_name, average_price) VALUES (?, ?, ?) ` +
		s.dialect.UpsertClause([]string{"region_name", "date"}, []string{"average_price"}))

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row.Date, row.RegionName, row.AveragePrice); err != nil {
				return fmt.Errorf("insert %s/%s: %w", row.RegionName, row.Date, err)
			}
		}
		return nil
	})
}

// InsertRents upserts rows in a single transaction.
func (s *Store) InsertRents(ctx context.Context, rows []storage.RentRecord) error {
	cols := []string{"rent_all", "rent_1bed", "rent_2bed", "rent_3bed", "rent_4plus"}
	query := s.dialect.Rebind(`INSERT INTO rental_prices (date, region_name, rent_all, rent_1bed, rent_2bed, rent_3bed, rent_4plus) VALUES (?, ?, ?, ?, ?, ?, ?) ` +
		s.dialect.UpsertClause([]string{"region_name", "date"}, cols))

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row.Date, row.RegionName, row.RentAll, row.Rent1Bed, row.Rent2Bed, row.Rent3Bed, row.Rent4Plus); err != nil {
				return fmt.Errorf("insert %s/%s: %w", row.RegionName, row.Date, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
