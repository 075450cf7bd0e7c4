package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvector is computed per query; the lead corpus is small enough that a
// stored column and trigger would be premature.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const leadVector = `to_tsvector('english',
	coalesce(l.school_name, '') || ' ' ||
	coalesce(l.email, '') || ' ' ||
	coalesce(l.address, '') || ' ' ||
	coalesce(l.phone_number, '') || ' ' ||
	coalesce(l.progress_status, '') || ' ' ||
	coalesce(u.username, ''))`

// Search runs plainto_tsquery over the lead fields plus the owner's username,
// ranked with ts_rank and snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT l.id, l.school_name,
			ts_headline('english', coalesce(l.address, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			coalesce(l.progress_status, ''),
			coalesce(u.username, ''),
			count(*) OVER () AS total
		FROM leads l
		LEFT JOIN users u ON u.id = l.assigned_to
		WHERE %s @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC
		LIMIT $2 OFFSET $3`, leadVector, leadVector)

	rows, err := p.db.Query(query, q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.ID, &result.SchoolName, &result.Snippet, &result.ProgressStatus, &result.AssignedTo, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, result)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every lead for a bulk reindex into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]LeadRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.school_name, l.email, l.address, l.phone_number,
			coalesce(l.progress_status, ''), coalesce(u.username, '')
		FROM leads l
		LEFT JOIN users u ON u.id = l.assigned_to`)
	if err != nil {
		return nil, fmt.Errorf("pgfts load leads: %w", err)
	}
	defer rows.Close()

	var records []LeadRecord
	for rows.Next() {
		var record LeadRecord
		if err := rows.Scan(&record.ID, &record.SchoolName, &record.Email, &record.Address,
			&record.PhoneNumber, &record.ProgressStatus, &record.AssignedTo); err != nil {
			return nil, fmt.Errorf("pgfts scan lead: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
