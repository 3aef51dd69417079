package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Type      string `json:"type"`
}

// Query describes an issue search request.
type Query struct {
	Text            string
	FilterProjectID string
	FilterStatus    string
	FilterType      string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over issues.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push issues into a search index.
type Indexer interface {
	IndexIssue(rec IssueRecord) error
	DeleteIssue(id string) error
}

// IssueRecord is the data we index for an issue.
type IssueRecord struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	AssigneeID  string `json:"assigneeId,omitempty"`
	SprintID    string `json:"sprintId,omitempty"`
}
