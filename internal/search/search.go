package search

// FileRecord is the data we index for a file.
type FileRecord struct {
	ID            string `json:"id"`
	FileNumber    string `json:"fileNumber"`
	Remarks       string `json:"remarks"`
	CurrentStatus string `json:"currentStatus"`
	AssignedTo    string `json:"assignedTo"`
	UploadedBy    string `json:"uploadedBy"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID            string `json:"id"`
	FileNumber    string `json:"fileNumber"`
	Snippet       string `json:"snippet"`
	CurrentStatus string `json:"currentStatus"`
}

// Query describes a search request. Non-admin actors only see files they
// uploaded or that are assigned to them; the backends enforce the scope.
type Query struct {
	Text    string
	ActorID string
	IsAdmin bool
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// normalizePage clamps a query's paging to sane values: limit defaults to 20
// when zero or negative, offset floors at zero. Both backends use it so a bad
// limit cannot behave differently across them.
func normalizePage(q Query) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset = q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Searcher can execute a full-text search over file records.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push file records into a search index.
type Indexer interface {
	IndexFile(f FileRecord) error
	DeleteFile(id string) error
}
