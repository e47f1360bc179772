// =============================================================================
// Guest Invoice Chunker - Record Store
// =============================================================================
//
// Optional persistence of reconstructed records. Every processed document is
// one run, identified by the run ID also used in output file names. The
// same schema works on SQLite (modernc.org/sqlite, no cgo) and PostgreSQL
// (pgx); queries are written with ? placeholders and rebound per driver.
//
// =============================================================================

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run describes one processed document.
type Run struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Format      string    `json:"format"`
	Pages       int       `json:"pages"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists runs and their records.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database and creates the schema.
//
// PARAMETERS:
//   - driver: "sqlite" or "pgx".
//   - dsn: The driver-specific data source name.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps in-memory databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		format TEXT NOT NULL,
		pages INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS guest_records (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		guest_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		guest_id TEXT NOT NULL,
		room_number TEXT NOT NULL,
		check_in_date TEXT NOT NULL,
		check_out_date TEXT NOT NULL,
		total_amount DOUBLE PRECISION NOT NULL,
		page_start INTEGER NOT NULL,
		page_end INTEGER NOT NULL,
		is_complete BOOLEAN NOT NULL,
		is_split BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS service_lines (
		run_id TEXT NOT NULL,
		record_seq INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		description TEXT NOT NULL,
		tax_rate TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		line_total DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, record_seq, seq)
	)`,
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store.Migrate: %w", err)
		}
	}
	return nil
}

// =============================================================================
// WRITES
// =============================================================================

// SaveRun stores a run and its records in one transaction. Saving the same
// run ID again replaces its records.
func (s *Store) SaveRun(ctx context.Context, run Run, records []types.GuestRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.RecordCount = len(records)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.SaveRun begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"service_lines", "guest_records", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE "+col+" = ?"), run.ID); err != nil {
			return fmt.Errorf("store.SaveRun clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO runs (id, source, format, pages, record_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.Source, run.Format, run.Pages, run.RecordCount, run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store.SaveRun run: %w", err)
	}

	recordQuery := tx.Rebind(`INSERT INTO guest_records (run_id, seq, guest_name, first_name, last_name, guest_id,
		room_number, check_in_date, check_out_date, total_amount, page_start, page_end, is_complete, is_split)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	serviceQuery := tx.Rebind(`INSERT INTO service_lines (run_id, record_seq, seq, description, tax_rate,
		quantity, unit_price, line_total) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for i, r := range records {
		_, err := tx.ExecContext(ctx, recordQuery,
			run.ID, i, r.GuestName, r.FirstName, r.LastName, r.GuestID,
			r.RoomNumber, r.CheckInDate, r.CheckOutDate, r.TotalAmount,
			r.PageStart, r.PageEnd, r.IsComplete, r.IsSplit)
		if err != nil {
			return fmt.Errorf("store.SaveRun record %d: %w", i, err)
		}
		for j, svc := range r.Services {
			_, err := tx.ExecContext(ctx, serviceQuery,
				run.ID, i, j, svc.Description, svc.TaxRate, svc.Quantity, svc.UnitPrice, svc.LineTotal)
			if err != nil {
				return fmt.Errorf("store.SaveRun service %d/%d: %w", i, j, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.SaveRun commit: %w", err)
	}

	s.logger.Debug("run saved", "run_id", run.ID, "records", len(records))
	return nil
}

// =============================================================================
// READS
// =============================================================================

type runRow struct {
	ID          string `db:"id"`
	Source      string `db:"source"`
	Format      string `db:"format"`
	Pages       int    `db:"pages"`
	RecordCount int    `db:"record_count"`
	CreatedAt   string `db:"created_at"`
}

func (r runRow) toRun() Run {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return Run{
		ID:          r.ID,
		Source:      r.Source,
		Format:      r.Format,
		Pages:       r.Pages,
		RecordCount: r.RecordCount,
		CreatedAt:   created,
	}
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM runs WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.GetRun: %w", err)
	}
	run := row.toRun()
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind("SELECT * FROM runs ORDER BY created_at DESC, id LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListRuns: %w", err)
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = r.toRun()
	}
	return runs, nil
}

type recordRow struct {
	Seq          int     `db:"seq"`
	GuestName    string  `db:"guest_name"`
	FirstName    string  `db:"first_name"`
	LastName     string  `db:"last_name"`
	GuestID      string  `db:"guest_id"`
	RoomNumber   string  `db:"room_number"`
	CheckInDate  string  `db:"check_in_date"`
	CheckOutDate string  `db:"check_out_date"`
	TotalAmount  float64 `db:"total_amount"`
	PageStart    int     `db:"page_start"`
	PageEnd      int     `db:"page_end"`
	IsComplete   bool    `db:"is_complete"`
	IsSplit      bool    `db:"is_split"`
}

type serviceRow struct {
	RecordSeq   int     `db:"record_seq"`
	Description string  `db:"description"`
	TaxRate     string  `db:"tax_rate"`
	Quantity    int     `db:"quantity"`
	UnitPrice   float64 `db:"unit_price"`
	LineTotal   float64 `db:"line_total"`
}

// ListRecords returns the records of a run in their original order with
// their services in document order.
func (s *Store) ListRecords(ctx context.Context, runID string) ([]types.GuestRecord, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT seq, guest_name, first_name, last_name, guest_id,
		room_number, check_in_date, check_out_date, total_amount, page_start, page_end, is_complete, is_split
		FROM guest_records WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("store.ListRecords: %w", err)
	}

	var services []serviceRow
	err = s.db.SelectContext(ctx, &services, s.db.Rebind(`SELECT record_seq, description, tax_rate, quantity,
		unit_price, line_total FROM service_lines WHERE run_id = ? ORDER BY record_seq, seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("store.ListRecords services: %w", err)
	}

	records := make([]types.GuestRecord, len(rows))
	index := make(map[int]int, len(rows))
	for i, r := range rows {
		index[r.Seq] = i
		records[i] = types.GuestRecord{
			GuestName:    r.GuestName,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			GuestID:      r.GuestID,
			RoomNumber:   r.RoomNumber,
			CheckInDate:  r.CheckInDate,
			CheckOutDate: r.CheckOutDate,
			Services:     []types.ServiceLine{},
			TotalAmount:  r.TotalAmount,
			PageStart:    r.PageStart,
			PageEnd:      r.PageEnd,
			IsComplete:   r.IsComplete,
			IsSplit:      r.IsSplit,
		}
	}
	for _, svc := range services {
		i, ok := index[svc.RecordSeq]
		if !ok {
			continue
		}
		records[i].Services = append(records[i].Services, types.ServiceLine{
			Description: svc.Description,
			TaxRate:     svc.TaxRate,
			Quantity:    svc.Quantity,
			UnitPrice:   svc.UnitPrice,
			LineTotal:   svc.LineTotal,
		})
	}

	return records, nil
}
