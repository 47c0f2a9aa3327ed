// Package memory is an in-process index store used for development and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/shopindex/internal/domain"
)

type entry struct {
	version int64
	// deleted marks a tombstone: it only holds the delete's version so that
	// older writes arriving later are rejected.
	deleted bool
	source  json.RawMessage
	doc     map[string]any
	fields  map[string][]string // dotted path -> lowercased leaf values
}

// Engine keeps documents in maps keyed by type and id.
type Engine struct {
	mu      sync.RWMutex
	indices map[domain.EntityType]map[string]*entry
	failure error
}

// New creates an empty in-memory index store.
func New() *Engine {
	return &Engine{indices: make(map[domain.EntityType]map[string]*entry)}
}

// Fail makes every subsequent operation return err until Restore is called.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = err
}

// Restore clears a failure set with Fail.
func (e *Engine) Restore() {
	e.Fail(nil)
}

func (e *Engine) Ping(context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.failure != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, e.failure)
	}
	return nil
}

// Index stores doc unless a newer version is already present.
func (e *Engine) Index(_ context.Context, doc domain.Document) error {
	ent, err := newEntry(doc)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, e.failure)
	}
	e.put(doc.Type, doc.ID.String(), ent)
	return nil
}

func (e *Engine) BulkIndex(_ context.Context, docs []domain.Document) error {
	entries := make([]*entry, len(docs))
	for i, d := range docs {
		ent, err := newEntry(d)
		if err != nil {
			return err
		}
		entries[i] = ent
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, e.failure)
	}
	for i, d := range docs {
		e.put(d.Type, d.ID.String(), entries[i])
	}
	return nil
}

func (e *Engine) put(t domain.EntityType, id string, ent *entry) {
	idx, ok := e.indices[t]
	if !ok {
		idx = make(map[string]*entry)
		e.indices[t] = idx
	}
	if cur, ok := idx[id]; ok && cur.version > ent.version {
		return
	}
	idx[id] = ent
}

// Delete replaces the document with a tombstone at version unless a newer
// version is stored. Deleting a missing document still records the tombstone.
func (e *Engine) Delete(_ context.Context, ref domain.EntityRef, version int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, e.failure)
	}
	e.put(ref.Type, ref.ID.String(), &entry{version: version, deleted: true})
	return nil
}

// Get returns the stored source of a document, or nil.
func (e *Engine) Get(ref domain.EntityRef) json.RawMessage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if ent, ok := e.indices[ref.Type][ref.ID.String()]; ok && !ent.deleted {
		return ent.source
	}
	return nil
}

// Count returns the number of documents of type t.
func (e *Engine) Count(t domain.EntityType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, ent := range e.indices[t] {
		if !ent.deleted {
			n++
		}
	}
	return n
}

// Search matches documents with a subset of the Lucene query-string syntax:
// whitespace separated terms, each either field:value (dotted paths reach
// embedded documents) or free text. All terms must match, case-insensitively,
// as substrings. Hits are ordered by id.
func (e *Engine) Search(_ context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	start := time.Now()
	terms := parseQuery(q.Query)

	e.mu.RLock()
	if e.failure != nil {
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, e.failure)
	}
	type match struct {
		id  string
		ent *entry
	}
	var matches []match
	for id, ent := range e.indices[q.Type] {
		if !ent.deleted && matchesAll(ent, terms) {
			matches = append(matches, match{id, ent})
		}
	}
	e.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].id < matches[j].id })

	total := len(matches)
	offset, size := q.Offset, q.Size
	if offset > total {
		offset = total
	}
	end := offset + size
	if end > total {
		end = total
	}

	hits := make([]domain.SearchHit, 0, end-offset)
	for _, m := range matches[offset:end] {
		src := m.ent.source
		if len(q.Fields) > 0 {
			projected, err := json.Marshal(Project(m.ent.doc, q.Fields))
			if err != nil {
				return nil, fmt.Errorf("project %s: %w", m.id, err)
			}
			src = projected
		}
		hits = append(hits, domain.SearchHit{ID: m.id, Source: src})
	}

	return &domain.SearchResult{Hits: hits, Total: total, TookMs: time.Since(start).Milliseconds()}, nil
}

func newEntry(doc domain.Document) (*entry, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc.Source))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", doc.Ref(), err)
	}
	fields := make(map[string][]string)
	flatten("", m, fields)
	return &entry{version: doc.Version, source: doc.Source, doc: m, fields: fields}, nil
}

func flatten(prefix string, v any, out map[string][]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []any:
		for _, child := range t {
			flatten(prefix, child, out)
		}
	case nil:
	default:
		out[prefix] = append(out[prefix], strings.ToLower(fmt.Sprint(t)))
	}
}

type term struct {
	field string
	value string
}

func parseQuery(q string) []term {
	var terms []term
	for _, tok := range strings.Fields(q) {
		if tok == "*" || tok == "*:*" {
			continue
		}
		field, value, ok := strings.Cut(tok, ":")
		if !ok {
			field, value = "", tok
		}
		value = strings.ToLower(strings.Trim(value, `"*`))
		if value == "" {
			continue
		}
		terms = append(terms, term{field: field, value: value})
	}
	return terms
}

func matchesAll(ent *entry, terms []term) bool {
	for _, t := range terms {
		if !matchesTerm(ent, t) {
			return false
		}
	}
	return true
}

func matchesTerm(ent *entry, t term) bool {
	if t.field != "" {
		return anyContains(ent.fields[t.field], t.value)
	}
	for _, vals := range ent.fields {
		if anyContains(vals, t.value) {
			return true
		}
	}
	return false
}

func anyContains(vals []string, needle string) bool {
	for _, v := range vals {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}
