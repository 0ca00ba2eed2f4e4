package search

// Match is a single vector search result: a record id and its cosine
// distance from the query (lower is closer).
type Match struct {
	id       string
	distance float64
}

// NewMatch creates a new Match.
func NewMatch(id string, distance float64) Match {
	return Match{id: id, distance: distance}
}

// ID returns the matched record id.
func (m Match) ID() string { return m.id }

// Distance returns the cosine distance to the query vector.
func (m Match) Distance() float64 { return m.distance }
