package models

// MemoryRecord is the core domain entity stored in SQLite. Its identity is
// the SHA-256 hash of its trimmed content, scoped to a project: storing the
// same content twice in a scope always converges on one row.
type MemoryRecord struct {
	ScopeID     string      `json:"scopeId"`
	ContentHash string      `json:"contentHash"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	Embedding   []byte      `json:"-"`
	Dimension   int         `json:"dimension"`
	Metadata    Metadata    `json:"metadata"`
	Threshold   float64     `json:"threshold"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
}

// ContentType classifies what kind of knowledge a record represents.
type ContentType string

const (
	ContentTypeTask         ContentType = "task"
	ContentTypeConversation ContentType = "conversation"
	ContentTypeFile         ContentType = "file"
	ContentTypeDecision     ContentType = "decision"
	ContentTypeContext      ContentType = "context"
)

var validContentTypes = map[ContentType]bool{
	ContentTypeTask:         true,
	ContentTypeConversation: true,
	ContentTypeFile:         true,
	ContentTypeDecision:     true,
	ContentTypeContext:      true,
}

func (t ContentType) IsValid() bool {
	return validContentTypes[t]
}

// MetadataVersion is the current shape version written into new records.
// Readers must tolerate older versions with absent fields.
const MetadataVersion = 1

// Metadata carries optional, explicitly-shaped attributes of a record.
// It is deliberately not an open map so writer and reader cannot drift apart
// silently: new fields require a version bump here.
type Metadata struct {
	Version   int      `json:"version"`
	Source    string   `json:"source,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	FilePath  string   `json:"filePath,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
}

// Scope tracks a registered project scope.
type Scope struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CreatedAt      int64  `json:"createdAt"`
	LastAccessedAt int64  `json:"lastAccessedAt"`
}

// EmbeddingCacheEntry stores a cached embedding keyed by content hash.
type EmbeddingCacheEntry struct {
	ContentHash string `json:"contentHash"`
	Embedding   []byte `json:"embedding"`
	Dimension   int    `json:"dimension"`
	Model       string `json:"model"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// DefaultThreshold is the per-record similarity floor applied when a store
// request doesn't carry one.
const DefaultThreshold = 0.3
