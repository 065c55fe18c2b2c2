package population

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scorewise/scorewise/internal/api"
)

// Store holds the reference population applicants are compared against. It is
// loaded once at boot from a CSV sample of the training population and is
// read-only afterwards.
type Store struct {
	db *sql.DB
}

// Open creates the store. Pass ":memory:" for an ephemeral store, which is the
// normal deployment: the CSV is the source of truth and reloading is cheap.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("population: open database: %w", err)
	}
	// The long-format table lives on a single connection-friendly schema;
	// in-memory databases must not exceed one connection or they fragment.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("population: ping database: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS population_features (
	name    TEXT PRIMARY KEY,
	numeric INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS population_values (
	feature TEXT NOT NULL,
	num     REAL,
	txt     TEXT
);
CREATE INDEX IF NOT EXISTS idx_population_values_feature ON population_values(feature);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("population: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// LoadCSV ingests the reference sample, keeping only declared features. A cell
// that parses as a number feeds the numeric distribution; otherwise the raw
// text is kept as a categorical level. Empty cells are treated as missing and
// skipped. Returns the number of rows ingested.
func (s *Store) LoadCSV(path string, declared []string, maxRows int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("population: open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("population: read csv header: %w", err)
	}

	declaredSet := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		declaredSet[name] = struct{}{}
	}
	// column index -> feature name, for declared features only
	kept := make(map[int]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := declaredSet[name]; ok {
			kept[i] = name
		}
	}
	if len(kept) == 0 {
		return 0, fmt.Errorf("population: csv shares no columns with the declared features")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("population: begin load: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO population_values(feature, num, txt) VALUES(?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("population: prepare insert: %w", err)
	}
	defer insert.Close()

	numericVotes := make(map[string]int)
	textVotes := make(map[string]int)

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("population: read csv row %d: %w", rows+1, err)
		}
		for i, feature := range kept {
			if i >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsNaN(v) {
				if _, err := insert.Exec(feature, v, nil); err != nil {
					return 0, fmt.Errorf("population: insert: %w", err)
				}
				numericVotes[feature]++
			} else {
				if _, err := insert.Exec(feature, nil, cell); err != nil {
					return 0, fmt.Errorf("population: insert: %w", err)
				}
				textVotes[feature]++
			}
		}
		rows++
		if maxRows > 0 && rows >= maxRows {
			break
		}
	}

	for _, feature := range kept {
		numeric := 0
		if numericVotes[feature] >= textVotes[feature] {
			numeric = 1
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO population_features(name, numeric) VALUES(?, ?)`,
			feature, numeric,
		); err != nil {
			return 0, fmt.Errorf("population: record feature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("population: commit load: %w", err)
	}
	return rows, nil
}

// Features returns the feature names available for comparison, sorted.
func (s *Store) Features() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM population_features ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("population: list features: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("population: scan feature: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Histogram returns the population distribution of one feature: equal-width
// buckets for numeric features, level counts for categorical ones. When value
// is non-nil the response also carries the percentile of that value within the
// numeric distribution.
func (s *Store) Histogram(feature string, bins int, value *float64) (*api.HistogramResponse, error) {
	var numeric int
	err := s.db.QueryRow(`SELECT numeric FROM population_features WHERE name = ?`, feature).Scan(&numeric)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("population: feature %q not in reference data", feature)
	}
	if err != nil {
		return nil, fmt.Errorf("population: look up feature: %w", err)
	}

	if numeric == 1 {
		return s.numericHistogram(feature, bins, value)
	}
	return s.categoricalHistogram(feature)
}

func (s *Store) numericHistogram(feature string, bins int, value *float64) (*api.HistogramResponse, error) {
	if bins <= 0 {
		bins = 30
	}
	rows, err := s.db.Query(
		`SELECT num FROM population_values WHERE feature = ? AND num IS NOT NULL ORDER BY num`, feature)
	if err != nil {
		return nil, fmt.Errorf("population: query values: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("population: scan value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("population: feature %q has no numeric values", feature)
	}

	low, high := values[0], values[len(values)-1]
	resp := &api.HistogramResponse{Feature: feature, Total: len(values)}
	if high == low {
		resp.Buckets = []api.HistogramBucket{{Low: low, High: high, Count: len(values)}}
	} else {
		width := (high - low) / float64(bins)
		buckets := make([]api.HistogramBucket, bins)
		for i := range buckets {
			buckets[i] = api.HistogramBucket{Low: low + float64(i)*width, High: low + float64(i+1)*width}
		}
		for _, v := range values {
			i := int((v - low) / width)
			if i >= bins {
				i = bins - 1
			}
			buckets[i].Count++
		}
		resp.Buckets = buckets
	}

	if value != nil {
		p := percentileOf(values, *value)
		resp.Value = value
		resp.Percentile = &p
	}
	return resp, nil
}

// percentileOf assumes values is sorted ascending.
func percentileOf(values []float64, v float64) float64 {
	n := sort.SearchFloat64s(values, v)
	// count values strictly below plus half the ties, the usual midrank
	ties := 0
	for i := n; i < len(values) && values[i] == v; i++ {
		ties++
	}
	return 100 * (float64(n) + float64(ties)/2) / float64(len(values))
}

func (s *Store) categoricalHistogram(feature string) (*api.HistogramResponse, error) {
	rows, err := s.db.Query(
		`SELECT txt, COUNT(*) FROM population_values
		 WHERE feature = ? AND txt IS NOT NULL
		 GROUP BY txt ORDER BY COUNT(*) DESC`, feature)
	if err != nil {
		return nil, fmt.Errorf("population: query categories: %w", err)
	}
	defer rows.Close()

	resp := &api.HistogramResponse{Feature: feature}
	for rows.Next() {
		var cc api.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, fmt.Errorf("population: scan category: %w", err)
		}
		resp.Categories = append(resp.Categories, cc)
		resp.Total += cc.Count
	}
	return resp, rows.Err()
}
