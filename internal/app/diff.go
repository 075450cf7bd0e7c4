package app

import (
	"fmt"
	"time"

	"leaddesk/api/internal/store"
	"leaddesk/api/internal/util"
)

// LeadPatch is a proposed partial update. A field is applied only when the
// proposed value is present and non-empty; an empty value means "no change",
// which also means no field can be cleared to empty through this path.
type LeadPatch struct {
	SchoolName     string `json:"schoolName"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	PhoneNumber    string `json:"phoneNumber"`
	ProgressStatus string `json:"progressStatus"`
	AssignedTo     string `json:"assignedTo"`
}

// Recognized progress stages, in their intended order. The engine accepts
// any of them in any order (workflows regress in practice) and does not
// reject unlisted labels; callers wanting strict progression enforce it
// themselves.
var ProgressStages = []string{
	"initial contact",
	"demo",
	"credential issuance requested",
	"credential issued",
	"trial",
	"onboarded",
}

// ApplyLeadPatch compares a proposed patch against the stored lead and
// returns the lead with the patch applied plus one history entry per changed
// field. Fields are evaluated in canonical order: schoolName, email, address,
// phoneNumber, progressStatus, assignedTo. A change is value inequality, not
// mere presence; equal values produce no entry. Every entry from one call
// shares the same timestamp, and its status/owner columns snapshot the
// post-patch values.
func ApplyLeadPatch(lead store.Lead, patch LeadPatch, now time.Time) (store.Lead, []store.HistoryEntry) {
	nextStatus := firstNonBlank(patch.ProgressStatus, lead.ProgressStatus)
	nextOwner := firstNonBlank(patch.AssignedTo, lead.AssignedTo)

	appendEntry := func(entries []store.HistoryEntry, description string) []store.HistoryEntry {
		return append(entries, store.HistoryEntry{
			ID:          util.NewID("hist"),
			LeadID:      lead.ID,
			Status:      nextStatus,
			AssignedTo:  nextOwner,
			Description: description,
			UpdatedAt:   now,
		})
	}

	var entries []store.HistoryEntry
	if patch.SchoolName != "" && patch.SchoolName != lead.SchoolName {
		entries = appendEntry(entries, fmt.Sprintf("School name changed from %q to %q", lead.SchoolName, patch.SchoolName))
	}
	if patch.Email != "" && patch.Email != lead.Email {
		entries = appendEntry(entries, fmt.Sprintf("Email changed from %q to %q", lead.Email, patch.Email))
	}
	if patch.Address != "" && patch.Address != lead.Address {
		entries = appendEntry(entries, fmt.Sprintf("Address changed from %q to %q", lead.Address, patch.Address))
	}
	if patch.PhoneNumber != "" && patch.PhoneNumber != lead.PhoneNumber {
		entries = appendEntry(entries, fmt.Sprintf("Phone number changed from %q to %q", lead.PhoneNumber, patch.PhoneNumber))
	}
	if patch.ProgressStatus != "" && patch.ProgressStatus != lead.ProgressStatus {
		entries = appendEntry(entries, fmt.Sprintf("Progress status changed from %q to %q", firstNonBlank(lead.ProgressStatus, "N/A"), patch.ProgressStatus))
	}
	if patch.AssignedTo != "" && patch.AssignedTo != lead.AssignedTo {
		entries = appendEntry(entries, fmt.Sprintf("Assigned to changed from %q to %q", firstNonBlank(lead.AssignedTo, "Unassigned"), patch.AssignedTo))
	}

	lead.SchoolName = firstNonBlank(patch.SchoolName, lead.SchoolName)
	lead.Email = firstNonBlank(patch.Email, lead.Email)
	lead.Address = firstNonBlank(patch.Address, lead.Address)
	lead.PhoneNumber = firstNonBlank(patch.PhoneNumber, lead.PhoneNumber)
	lead.ProgressStatus = nextStatus
	lead.AssignedTo = nextOwner

	return lead, entries
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
