package app

import (
	"strings"
	"testing"
	"time"

	"leaddesk/api/internal/store"
)

func TestApplyLeadPatchSingleField(t *testing.T) {
	lead := store.Lead{ID: "lead_1", SchoolName: "Oak", Address: "1 Elm"}
	now := time.Now()

	updated, entries := ApplyLeadPatch(lead, LeadPatch{SchoolName: "Oak Academy"}, now)

	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	want := `School name changed from "Oak" to "Oak Academy"`
	if entries[0].Description != want {
		t.Fatalf("description = %q, want %q", entries[0].Description, want)
	}
	if updated.SchoolName != "Oak Academy" {
		t.Fatalf("school name = %q, want Oak Academy", updated.SchoolName)
	}
	if updated.Address != "1 Elm" {
		t.Fatalf("address changed unexpectedly: %q", updated.Address)
	}
	if !entries[0].UpdatedAt.Equal(now) {
		t.Fatal("entry must carry the shared timestamp")
	}
}

func TestApplyLeadPatchCanonicalOrderAndSharedTimestamp(t *testing.T) {
	lead := store.Lead{
		ID:             "lead_1",
		SchoolName:     "Oak",
		Email:          "oak@example.com",
		Address:        "1 Elm",
		PhoneNumber:    "555-0100",
		ProgressStatus: "demo",
		AssignedTo:     "usr_old",
	}
	now := time.Now()

	_, entries := ApplyLeadPatch(lead, LeadPatch{
		AssignedTo:     "usr_new",
		ProgressStatus: "trial",
		PhoneNumber:    "555-0199",
		Address:        "2 Birch",
		Email:          "birch@example.com",
		SchoolName:     "Birch",
	}, now)

	if len(entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(entries))
	}
	order := []string{"School name", "Email", "Address", "Phone number", "Progress status", "Assigned to"}
	for i, prefix := range order {
		if !strings.HasPrefix(entries[i].Description, prefix) {
			t.Errorf("entry %d = %q, want prefix %q", i, entries[i].Description, prefix)
		}
		if !entries[i].UpdatedAt.Equal(now) {
			t.Errorf("entry %d timestamp differs from the shared instant", i)
		}
	}
}

func TestApplyLeadPatchEqualValuesProduceNoEntries(t *testing.T) {
	lead := store.Lead{
		ID:             "lead_1",
		SchoolName:     "Oak",
		Email:          "oak@example.com",
		Address:        "1 Elm",
		PhoneNumber:    "555-0100",
		ProgressStatus: "demo",
		AssignedTo:     "usr_1",
	}

	updated, entries := ApplyLeadPatch(lead, LeadPatch{
		SchoolName:     "Oak",
		Email:          "oak@example.com",
		Address:        "1 Elm",
		PhoneNumber:    "555-0100",
		ProgressStatus: "demo",
		AssignedTo:     "usr_1",
	}, time.Now())

	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
	if updated.SchoolName != lead.SchoolName || updated.AssignedTo != lead.AssignedTo {
		t.Fatal("lead must be unchanged")
	}
}

func TestApplyLeadPatchEmptyMeansUnchanged(t *testing.T) {
	lead := store.Lead{ID: "lead_1", SchoolName: "Oak", Email: "oak@example.com"}

	updated, entries := ApplyLeadPatch(lead, LeadPatch{}, time.Now())

	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
	if updated.SchoolName != "Oak" || updated.Email != "oak@example.com" {
		t.Fatal("empty patch values must leave fields untouched")
	}
}

func TestApplyLeadPatchAssignmentFromUnassigned(t *testing.T) {
	lead := store.Lead{ID: "lead_1", SchoolName: "Oak"}

	_, entries := ApplyLeadPatch(lead, LeadPatch{AssignedTo: "U1"}, time.Now())

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := `Assigned to changed from "Unassigned" to "U1"`
	if entries[0].Description != want {
		t.Fatalf("description = %q, want %q", entries[0].Description, want)
	}
	if entries[0].AssignedTo != "U1" {
		t.Fatalf("entry owner snapshot = %q, want U1", entries[0].AssignedTo)
	}
}

func TestApplyLeadPatchStatusFromAbsent(t *testing.T) {
	lead := store.Lead{ID: "lead_1", SchoolName: "Oak"}

	_, entries := ApplyLeadPatch(lead, LeadPatch{ProgressStatus: "initial contact"}, time.Now())

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := `Progress status changed from "N/A" to "initial contact"`
	if entries[0].Description != want {
		t.Fatalf("description = %q, want %q", entries[0].Description, want)
	}
	if entries[0].Status != "initial contact" {
		t.Fatalf("entry status snapshot = %q, want the proposed status", entries[0].Status)
	}
}

func TestApplyLeadPatchEntriesSnapshotProposedValues(t *testing.T) {
	lead := store.Lead{
		ID:             "lead_1",
		SchoolName:     "Oak",
		ProgressStatus: "demo",
		AssignedTo:     "usr_old",
	}

	_, entries := ApplyLeadPatch(lead, LeadPatch{
		SchoolName:     "Birch",
		ProgressStatus: "trial",
		AssignedTo:     "usr_new",
	}, time.Now())

	for _, entry := range entries {
		if entry.Status != "trial" {
			t.Errorf("entry %q status = %q, want trial", entry.Description, entry.Status)
		}
		if entry.AssignedTo != "usr_new" {
			t.Errorf("entry %q owner = %q, want usr_new", entry.Description, entry.AssignedTo)
		}
	}
}
