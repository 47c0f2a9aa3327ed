package domain

import "encoding/json"

// SearchQuery is a query against one index. Fields, when set, narrows each
// hit's source to the listed (possibly dotted) paths.
type SearchQuery struct {
	Type   EntityType
	Query  string
	Fields []string
	Offset int
	Size   int
}

// SearchHit is one matching document.
type SearchHit struct {
	ID     string          `json:"id"`
	Source json.RawMessage `json:"source"`
}

// SearchResult is one page of hits.
type SearchResult struct {
	Hits   []SearchHit `json:"hits"`
	Total  int         `json:"total"`
	TookMs int64       `json:"took_ms"`
}
