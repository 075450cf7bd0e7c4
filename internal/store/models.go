package store

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lead is the shared record. AssignedTo is a weak reference to a User id,
// empty when unassigned; the referenced user is resolved at read time, never
// embedded. StatusHistory and EmailCampaigns are loaded with the lead and
// always returned in append order.
type Lead struct {
	ID             string
	SchoolName     string
	Email          string
	Address        string
	PhoneNumber    string
	ProgressStatus string
	AssignedTo     string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StatusHistory  []HistoryEntry
	EmailCampaigns []CampaignEntry
}

// HistoryEntry is one immutable audit record of a field change. Only
// Description may be edited after creation.
type HistoryEntry struct {
	ID          string
	LeadID      string
	Status      string
	AssignedTo  string
	Description string
	UpdatedAt   time.Time
}

type CampaignEntry struct {
	ID       string
	LeadID   string
	Category string
	Content  string
	SentBy   string
	SentAt   time.Time
}
