package models

// Cluster is derived state: a clustering run fully recomputes a scope's
// clusters from its current records and replaces the stored set. Cluster IDs
// carry no meaning across runs.
type Cluster struct {
	ID           string    `json:"id"`
	ScopeID      string    `json:"scopeId"`
	Name         string    `json:"name"`
	Centroid     []float32 `json:"-"`
	Dimension    int       `json:"dimension"`
	MemberHashes []string  `json:"memberHashes"`
	Relevance    float64   `json:"relevance"`
	Size         int       `json:"size"`
	UpdatedAt    int64     `json:"updatedAt"`
}

// SearchResult pairs a record reference with its similarity score for one
// query. Results are ephemeral and never persisted.
type SearchResult struct {
	ContentHash string      `json:"contentHash"`
	ScopeID     string      `json:"scopeId"`
	Content     string      `json:"content,omitempty"`
	ContentType ContentType `json:"contentType"`
	Metadata    Metadata    `json:"metadata"`
	Similarity  float64     `json:"similarity"`
	CreatedAt   int64       `json:"createdAt"`
}
