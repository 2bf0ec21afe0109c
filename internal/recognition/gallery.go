// internal/recognition/gallery.go
package recognition

import (
	"math"
	"sync"
	"time"
)

// Embedding is a face descriptor. Embeddings produced by an Aligner are
// unit length so that their dot product is the cosine similarity.
type Embedding []float32

// Similarity is the cosine similarity of a and b, 0 when either is empty or
// their lengths differ.
func Similarity(a, b Embedding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

// Mean averages samples and normalizes the result to unit length.
func Mean(samples []Embedding) Embedding {
	if len(samples) == 0 {
		return nil
	}
	out := make(Embedding, len(samples[0]))
	for _, s := range samples {
		for i := range out {
			if i < len(s) {
				out[i] += s[i]
			}
		}
	}
	normalize(out)
	return out
}

func normalize(e Embedding) {
	var n float64
	for _, v := range e {
		n += float64(v) * float64(v)
	}
	if n == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(n))
	for i := range e {
		e[i] *= inv
	}
}

// Identity is one enrolled face.
type Identity struct {
	ID        int       `json:"id"`
	Samples   int       `json:"samples"`
	Enrolled  time.Time `json:"enrolled"`
	Embedding Embedding `json:"-"`
}

// Gallery is a bounded, insertion-ordered list of identities. When full,
// committing a new identity evicts the oldest one.
type Gallery struct {
	mu       sync.RWMutex
	capacity int
	nextID   int
	items    []Identity
}

func NewGallery(capacity int) *Gallery {
	if capacity < 1 {
		capacity = 1
	}
	return &Gallery{capacity: capacity, nextID: 1}
}

// Reserve hands out the next identity ID. IDs start at 1 and are never
// reused, even when the enrollment that reserved them is abandoned.
func (g *Gallery) Reserve() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	return id
}

// Add stores the averaged samples under id. It returns the identity that
// was evicted to make room, if any.
func (g *Gallery) Add(id int, samples []Embedding) (Identity, *Identity) {
	ident := Identity{
		ID:        id,
		Samples:   len(samples),
		Enrolled:  time.Now(),
		Embedding: Mean(samples),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if id >= g.nextID {
		g.nextID = id + 1
	}

	var evicted *Identity
	if len(g.items) >= g.capacity {
		oldest := g.items[0]
		evicted = &oldest
		g.items = append(g.items[:0:0], g.items[1:]...)
	}
	g.items = append(g.items, ident)
	return ident, evicted
}

// Match returns the identity most similar to e. ok is false when the gallery
// is empty or the best similarity is below threshold.
func (g *Gallery) Match(e Embedding, threshold float64) (ident Identity, similarity float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	best := -1
	similarity = -1
	for i, it := range g.items {
		if s := Similarity(e, it.Embedding); s > similarity {
			best, similarity = i, s
		}
	}
	if best < 0 {
		return Identity{}, 0, false
	}
	if similarity < threshold {
		return Identity{}, similarity, false
	}
	return g.items[best], similarity, true
}

// Remove deletes the identity with the given ID.
func (g *Gallery) Remove(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, it := range g.items {
		if it.ID == id {
			g.items = append(g.items[:i:i], g.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the identities oldest first.
func (g *Gallery) List() []Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Identity, len(g.items))
	copy(out, g.items)
	return out
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items)
}

func (g *Gallery) Capacity() int { return g.capacity }
