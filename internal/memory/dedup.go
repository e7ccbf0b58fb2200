package memory

import (
	"context"

	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

// nearDupFloor is the cosine similarity above which an existing record is
// reported as a near-duplicate. The signal never blocks storage: identity
// is the content hash, and only byte-identical content deduplicates.
const nearDupFloor = 0.85

// Deduplicator finds near-duplicates of incoming content within a scope.
type Deduplicator struct {
	records *store.RecordStore
	floor   float64
}

func NewDeduplicator(records *store.RecordStore, floor float64) *Deduplicator {
	if floor <= 0 {
		floor = nearDupFloor
	}
	return &Deduplicator{records: records, floor: floor}
}

// FindNearDuplicate scans the scope for the stored record most similar to
// vec. Returns its hash and similarity when the best match reaches the
// floor, or an empty hash otherwise.
func (d *Deduplicator) FindNearDuplicate(ctx context.Context, scopeID string, vec []float32) (string, float64, error) {
	candidates, err := d.records.ListByScope(ctx, scopeID)
	if err != nil {
		return "", 0, err
	}

	bestHash := ""
	bestSim := 0.0
	for _, rec := range candidates {
		emb := vector.BytesToFloat32(rec.Embedding)
		if len(emb) == 0 {
			continue
		}
		sim := vector.CosineSimilarity(vec, emb)
		if sim > bestSim {
			bestSim = sim
			bestHash = rec.ContentHash
		}
	}

	if bestSim >= d.floor {
		return bestHash, bestSim, nil
	}
	return "", 0, nil
}
