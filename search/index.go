package search

import (
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"github.com/puzpuzpuz/xsync/v3"
)

// Options tune a single search call. Zero values take the defaults.
type Options struct {
	Limit     int     // maximum hits returned; default 10
	Tolerance int     // maximum edit distance per term; default 1, negative for exact matches only
	Threshold float64 // minimum score in (0,1]; default 0 (no cutoff)
}

const (
	defaultLimit     = 10
	defaultTolerance = 1
)

// Hit is one ranked search result.
type Hit struct {
	ID       string
	Score    float64
	Document Document
}

// Index is the in-memory fuzzy index: one document per person. Reads and
// incremental writes may interleave; readers can observe a partially
// updated index during Add/Remove, which is acceptable for a best-effort
// search feature.
type Index struct {
	docs  *xsync.MapOf[string, Document]
	ready atomic.Bool
}

// NewIndex creates an empty, not-yet-ready index.
func NewIndex() *Index {
	return &Index{docs: xsync.NewMapOf[string, Document]()}
}

// Build replaces the index content with a fresh snapshot and marks the
// index ready.
func (i *Index) Build(batch Batch, logger *slog.Logger) {
	docs := BuildDocuments(batch, logger)
	i.docs.Clear()
	for _, doc := range docs {
		i.docs.Store(doc.ID, doc)
	}
	i.ready.Store(true)
}

// Add inserts or replaces one document without a full rebuild.
func (i *Index) Add(doc Document) {
	if doc.ID == "" {
		return
	}
	i.docs.Store(doc.ID, doc)
}

// Remove drops one document.
func (i *Index) Remove(id string) {
	i.docs.Delete(id)
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	return i.docs.Size()
}

// Ready reports whether Build has completed at least once.
func (i *Index) Ready() bool {
	return i.ready.Load()
}

// Search matches term against every document's tokens within the edit
// distance tolerance and returns hits ranked by score. A document scores
// 1.0 on an exact token match; fuzzy matches decay with distance.
func (i *Index) Search(term string, opts Options) []Hit {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = defaultTolerance
	} else if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	var hits []Hit
	i.docs.Range(func(id string, doc Document) bool {
		score := scoreDocument(term, &doc, opts.Tolerance)
		if score > 0 && score >= opts.Threshold {
			hits = append(hits, Hit{ID: id, Score: score, Document: doc})
		}
		return true
	})

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

func scoreDocument(term string, doc *Document, tolerance int) float64 {
	best := 0.0
	for _, token := range doc.terms() {
		dist := levenshtein.ComputeDistance(term, token)
		if dist > tolerance {
			continue
		}
		longest := len(term)
		if len(token) > longest {
			longest = len(token)
		}
		score := 1.0
		if longest > 0 {
			score = 1.0 - float64(dist)/float64(longest)
		}
		if score > best {
			best = score
		}
	}
	return best
}

// tokenize lowercases a field and splits it on whitespace. Values like
// email addresses stay whole so exact lookups keep working.
func tokenize(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Fields(strings.ToLower(field))
}
