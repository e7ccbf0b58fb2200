package models

// StoreRequest creates a new memory record.
type StoreRequest struct {
	Scope       string      `json:"scope"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	Metadata    Metadata    `json:"metadata"`
	Threshold   float64     `json:"threshold,omitempty"`
}

// StoreResponse reports the outcome of a store call. Hash is always the
// stable identity of the content, whether it was just inserted or already
// present.
type StoreResponse struct {
	Hash              string  `json:"hash"`
	Deduplicated      bool    `json:"deduplicated"`
	Skipped           bool    `json:"skipped,omitempty"`
	SkipReason        string  `json:"skipReason,omitempty"`
	NearDuplicateHash string  `json:"nearDuplicateHash,omitempty"`
	NearDupSimilarity float64 `json:"nearDupSimilarity,omitempty"`
}

// UpdateRequest replaces a record's content, re-embedding under a new hash.
type UpdateRequest struct {
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// SearchRequest runs a single ranked similarity search.
type SearchRequest struct {
	Scope          string        `json:"scope"`
	Query          string        `json:"query"`
	ContentTypes   []ContentType `json:"contentTypes,omitempty"`
	Threshold      *float64      `json:"threshold,omitempty"`
	Limit          int           `json:"limit,omitempty"`
	IncludeContent *bool         `json:"includeContent,omitempty"`
	// Diversity enables the diversity-filtered variant with the given
	// near-duplicate cutoff when > 0.
	Diversity float64 `json:"diversity,omitempty"`
	// Fallback selects a degraded strategy ("keyword") when the embedding
	// provider is unreachable. Consumer-surface concern only.
	Fallback string `json:"fallback,omitempty"`
}

// SearchResponse carries the ranked results plus observability metadata.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Meta    SearchMeta     `json:"meta"`
}

type SearchMeta struct {
	Candidates   int    `json:"candidates"`
	SearchTimeMs int    `json:"searchTimeMs"`
	Strategy     string `json:"strategy"`
}

// BatchSearchRequest runs independent single-query searches.
type BatchSearchRequest struct {
	Scope   string   `json:"scope"`
	Queries []string `json:"queries"`
	SearchRequest
}

type BatchSearchResponse struct {
	Results [][]SearchResult `json:"results"`
}

// ClusterRequest triggers a clustering run for a scope.
type ClusterRequest struct {
	MinK                 int     `json:"minK,omitempty"`
	MaxK                 int     `json:"maxK,omitempty"`
	MaxIterations        int     `json:"maxIterations,omitempty"`
	ConvergenceThreshold float64 `json:"convergenceThreshold,omitempty"`
}

type ClusterResponse struct {
	Clusters []Cluster `json:"clusters"`
	K        int       `json:"k"`
}

// ValidateRequest screens a text blob before it is injected into a prompt.
type ValidateRequest struct {
	Text string `json:"text"`
	// Enforce makes the endpoint answer with an error status at CRITICAL
	// instead of just advising.
	Enforce bool `json:"enforce,omitempty"`
}

// HealthResponse reports component availability.
type HealthResponse struct {
	Status      string       `json:"status"`
	Provider    ServiceCheck `json:"provider"`
	DB          ServiceCheck `json:"db"`
	RecordCount int          `json:"recordCount,omitempty"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
