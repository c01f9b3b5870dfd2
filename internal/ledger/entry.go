package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/dpgraph/internal/privacy"
)

// ErrNotFound is returned when an analysis has no ledger rows.
var ErrNotFound = errors.New("analysis not found in ledger")

// Entry is one successful release batch.
type Entry struct {
	AnalysisID string
	Batch      uint32
	Definition privacy.Definition

	// GraphHash is the fingerprint of the graph that was released.
	GraphHash     string
	NodeCount     int
	ReleasedCount int

	// Epsilon and Delta sum the usages of the values first released in
	// this batch.
	Epsilon float64
	Delta   float64

	// Release is the engine response as JSON.
	Release json.RawMessage
}

// RecordRelease appends e. Writing the same (analysis, batch) twice is a
// no-op, as is re-registering an analysis.
func (s *Store) RecordRelease(ctx context.Context, e Entry) error {
	if e.AnalysisID == "" {
		return fmt.Errorf("record release: empty analysis id")
	}
	release := e.Release
	if release == nil {
		release = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record release: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, distance, neighboring)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.AnalysisID, e.Definition.Distance.String(), e.Definition.Neighboring.String())
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO releases
		(analysis_id, batch, graph_hash, node_count, released_count, epsilon, delta, release)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id, batch) DO NOTHING
	`,
		e.AnalysisID,
		e.Batch,
		e.GraphHash,
		e.NodeCount,
		e.ReleasedCount,
		e.Epsilon,
		e.Delta,
		string(release),
	)
	if err != nil {
		return fmt.Errorf("record release: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record release: %w", err)
	}
	return nil
}

// ReadReleases returns the entries of an analysis ordered by batch.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadReleases(ctx context.Context, analysisID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.analysis_id, r.batch, a.distance, a.neighboring,
		       r.graph_hash, r.node_count, r.released_count, r.epsilon, r.delta, r.release
		FROM releases r
		JOIN analyses a ON r.analysis_id = a.id
		WHERE r.analysis_id = ?
		ORDER BY r.batch ASC
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                     Entry
		distance, neighboring string
		release               string
	)
	if err := rows.Scan(&e.AnalysisID, &e.Batch, &distance, &neighboring,
		&e.GraphHash, &e.NodeCount, &e.ReleasedCount, &e.Epsilon, &e.Delta, &release); err != nil {
		return Entry{}, fmt.Errorf("scan release: %w", err)
	}
	if err := e.Definition.Distance.UnmarshalText([]byte(distance)); err != nil {
		return Entry{}, fmt.Errorf("scan release: %w", err)
	}
	if err := e.Definition.Neighboring.UnmarshalText([]byte(neighboring)); err != nil {
		return Entry{}, fmt.Errorf("scan release: %w", err)
	}
	e.Release = json.RawMessage(release)
	return e, nil
}

// TotalUsage sums epsilon and delta over every batch of an analysis
// (basic composition). Returns ErrNotFound for an unknown analysis.
func (s *Store) TotalUsage(ctx context.Context, analysisID string) (epsilon, delta float64, err error) {
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE id = ?`, analysisID).Scan(&exists)
	if err != nil {
		return 0, 0, fmt.Errorf("total usage: %w", err)
	}
	if exists == 0 {
		return 0, 0, fmt.Errorf("total usage for %s: %w", analysisID, ErrNotFound)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(epsilon), 0), COALESCE(SUM(delta), 0)
		FROM releases
		WHERE analysis_id = ?
	`, analysisID).Scan(&epsilon, &delta)
	if err != nil {
		return 0, 0, fmt.Errorf("total usage: %w", err)
	}
	return epsilon, delta, nil
}

// ReadDefinition returns the privacy definition recorded for an analysis.
func (s *Store) ReadDefinition(ctx context.Context, analysisID string) (privacy.Definition, error) {
	var distance, neighboring string
	err := s.db.QueryRowContext(ctx, `
		SELECT distance, neighboring FROM analyses WHERE id = ?
	`, analysisID).Scan(&distance, &neighboring)
	if errors.Is(err, sql.ErrNoRows) {
		return privacy.Definition{}, fmt.Errorf("read definition for %s: %w", analysisID, ErrNotFound)
	}
	if err != nil {
		return privacy.Definition{}, fmt.Errorf("read definition: %w", err)
	}
	var def privacy.Definition
	if err := def.Distance.UnmarshalText([]byte(distance)); err != nil {
		return privacy.Definition{}, err
	}
	if err := def.Neighboring.UnmarshalText([]byte(neighboring)); err != nil {
		return privacy.Definition{}, err
	}
	return def, nil
}
