package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderCampaignTemplate(t *testing.T) {
	data := CampaignData{
		Category: "Newsletter",
		Content:  "September enrollment numbers are in.",
		FromName: "LeadDesk",
	}

	html, err := renderTemplate(campaignEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "LeadDesk") {
		t.Error("template should contain the sender name")
	}
	if !strings.Contains(html, "September enrollment numbers are in.") {
		t.Error("template should contain the campaign content")
	}
	if !strings.Contains(html, "Newsletter") {
		t.Error("template should contain the category")
	}
}

func TestCampaignSubjectByCategory(t *testing.T) {
	for category, prefix := range campaignSubjects {
		if prefix == "" {
			t.Errorf("category %s has no subject prefix", category)
		}
	}
	if _, ok := campaignSubjects["Promotional"]; !ok {
		t.Error("Promotional category missing a subject")
	}
}
