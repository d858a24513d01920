package mail

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultChunkSize is the rune length of one embedded chunk of mail text.
const DefaultChunkSize = 1500

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Document is one embedded chunk of an e-mail.
type Document struct {
	EmailID string
	Chunk   int
	Date    time.Time
	Vector  []float64
}

// Index stores embedded chunks and answers nearest-neighbour queries by
// e-mail id.
type Index interface {
	Upsert(docs ...Document)
	Search(vector []float64, k int, start, end *time.Time) []string
	Contains(emailID string) bool
	Len() int
}

// MemoryIndex is an in-process Index using cosine similarity.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]Document
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]Document)}
}

// Upsert stores chunks. All chunks of an e-mail present in one call replace
// the chunks stored for it earlier.
func (ix *MemoryIndex) Upsert(docs ...Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	fresh := make(map[string]bool)
	for _, d := range docs {
		if !fresh[d.EmailID] {
			ix.docs[d.EmailID] = nil
			fresh[d.EmailID] = true
		}
		ix.docs[d.EmailID] = append(ix.docs[d.EmailID], d)
	}
}

// Search returns the ids of the k e-mails whose best chunk is closest to
// vector, restricted to the optional date range. Each e-mail appears once.
func (ix *MemoryIndex) Search(vector []float64, k int, start, end *time.Time) []string {
	if k <= 0 {
		return nil
	}

	ix.mu.RLock()
	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for _, chunks := range ix.docs {
		for _, d := range chunks {
			if start != nil && d.Date.Before(*start) {
				continue
			}
			if end != nil && d.Date.After(*end) {
				continue
			}
			hits = append(hits, hit{id: d.EmailID, score: cosine(vector, d.Vector)})
		}
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score == hits[j].score {
			return hits[i].id < hits[j].id
		}
		return hits[i].score > hits[j].score
	})

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
	}
	ids = Dedupe(ids)
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

// Contains reports whether an e-mail has been indexed.
func (ix *MemoryIndex) Contains(emailID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[emailID]
	return ok
}

// Len is the number of indexed e-mails.
func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Chunk splits text into pieces of at most size runes, preferring to cut at
// whitespace.
func Chunk(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := size
		for i := size; i > 0 && i >= size/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		if c := strings.TrimSpace(string(runes[:cut])); c != "" {
			chunks = append(chunks, c)
		}
		runes = runes[cut:]
	}
	return chunks
}

// Embed chunks an e-mail, embeds the chunks and returns index documents.
func Embed(ctx context.Context, e Embedder, email Email, chunkSize int) ([]Document, error) {
	header := strings.TrimSpace(email.Subject + "\n" + email.Sender)
	chunks := Chunk(email.Text, chunkSize)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = strings.TrimSpace(header + "\n" + c)
	}

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(vectors))
	for i, v := range vectors {
		docs = append(docs, Document{EmailID: email.ID, Chunk: i, Date: email.Date, Vector: v})
	}
	return docs, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
