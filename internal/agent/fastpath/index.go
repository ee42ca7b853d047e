package fastpath

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	chromem "github.com/philippgille/chromem-go"
)

// embeddingDims is the size of the local hash embedding.
const embeddingDims = 128

// Hit is one retrieval result.
type Hit struct {
	ID         string
	Content    string
	Similarity float32
}

// Index is a small in-memory vector index over catalog fact sheets. It uses
// a deterministic local embedding so retrieval works without any external
// embedding service.
type Index struct {
	collection *chromem.Collection
}

// NewIndex builds the index from id→document pairs.
func NewIndex(ctx context.Context, documents map[string]string) (*Index, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("poi_facts", nil, localEmbedding)
	if err != nil {
		return nil, fmt.Errorf("fastpath: create collection: %w", err)
	}

	ids := make([]string, 0, len(documents))
	for docID := range documents {
		ids = append(ids, docID)
	}
	sort.Strings(ids)

	for _, docID := range ids {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:      docID,
			Content: documents[docID],
		})
		if err != nil {
			return nil, fmt.Errorf("fastpath: add document %s: %w", docID, err)
		}
	}
	return &Index{collection: collection}, nil
}

// Search returns the topK most similar documents for the query text.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 3
	}
	if n := idx.collection.Count(); topK > n {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := idx.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fastpath: query index: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Content: r.Content, Similarity: r.Similarity})
	}
	return hits, nil
}

// localEmbedding hashes character trigrams into a fixed-size normalized
// vector. Crude, but deterministic and good enough to rank a small catalog.
func localEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	runes := []rune(text)
	if len(runes) == 0 {
		vec[0] = 1
		return vec, nil
	}

	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%embeddingDims]++
	}
	// Single characters too, so very short queries still embed.
	for _, r := range runes {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(r)))
		vec[h.Sum32()%embeddingDims] += 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
