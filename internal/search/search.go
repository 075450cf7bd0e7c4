package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID             string `json:"id"`
	SchoolName     string `json:"schoolName"`
	Snippet        string `json:"snippet"`
	ProgressStatus string `json:"progressStatus"`
	AssignedTo     string `json:"assignedTo"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Searcher can execute a full-text search over the lead corpus.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// LeadRecord is the data we index for a lead. AssignedTo carries the owner's
// username so reps can search by name rather than by id.
type LeadRecord struct {
	ID             string `json:"id"`
	SchoolName     string `json:"schoolName"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	PhoneNumber    string `json:"phoneNumber"`
	ProgressStatus string `json:"progressStatus"`
	AssignedTo     string `json:"assignedTo"`
}
