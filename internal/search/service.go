package search

import (
	"context"
	"log"

	"leaddesk/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured; queries then run against Postgres alone.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// SearchLeads tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Results are rendered for the search endpoint; a backend failure degrades to
// an empty result set rather than an error.
func (s *Service) SearchLeads(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	q := Query{Text: query, Limit: limit}

	if s.meili != nil && s.meili.Healthy() {
		results, _, err := s.meili.Search(q)
		if err == nil {
			return renderResults(results), nil
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, _, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return []map[string]any{}, nil
	}
	return renderResults(results), nil
}

// IndexLead pushes a lead into the search index (fire-and-forget).
func (s *Service) IndexLead(lead store.Lead, ownerUsername string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := LeadRecord{
		ID:             lead.ID,
		SchoolName:     lead.SchoolName,
		Email:          lead.Email,
		Address:        lead.Address,
		PhoneNumber:    lead.PhoneNumber,
		ProgressStatus: lead.ProgressStatus,
		AssignedTo:     ownerUsername,
	}
	go func() {
		if err := s.meili.IndexLead(record); err != nil {
			log.Printf("search: index lead %s: %v", record.ID, err)
		}
	}()
}

// RemoveLead removes a lead from the search index (fire-and-forget).
func (s *Service) RemoveLead(leadID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteLead(leadID); err != nil {
			log.Printf("search: delete lead %s: %v", leadID, err)
		}
	}()
}

// ReindexAllFromPG reads every lead from Postgres and pushes the records to
// Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexLeads(records); err != nil {
		log.Printf("search: reindex leads: %v", err)
	}
}

func renderResults(results []Result) []map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"id":             result.ID,
			"schoolName":     result.SchoolName,
			"snippet":        result.Snippet,
			"progressStatus": result.ProgressStatus,
			"assignedTo":     result.AssignedTo,
		})
	}
	return items
}
