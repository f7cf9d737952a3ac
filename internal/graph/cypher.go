package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// CypherBuilder builds parameterized Cypher. All values travel as
// parameters; only validated identifiers are spliced into query text,
// which rules out Cypher injection from node properties or paths.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{params: make(map[string]any)}
}

// AddParam registers a value and returns its placeholder.
func (b *CypherBuilder) AddParam(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// MergeNode builds an idempotent node upsert keyed on uniqueKey.
func (b *CypherBuilder) MergeNode(label, uniqueKey string, uniqueValue any, properties map[string]any) (string, error) {
	if !validIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	if !validIdentifier(uniqueKey) {
		return "", fmt.Errorf("invalid unique key: %s", uniqueKey)
	}

	keyParam := b.AddParam(uniqueValue)
	setClauses := make([]string, 0, len(properties))
	for key, value := range properties {
		if !validIdentifier(key) {
			return "", fmt.Errorf("invalid property key: %s", key)
		}
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", key, b.AddParam(value)))
	}

	query := fmt.Sprintf("MERGE (n:%s {%s: %s})", label, uniqueKey, keyParam)
	if len(setClauses) > 0 {
		query += " SET " + strings.Join(setClauses, ", ")
	}
	return query, nil
}

// MergeEdge builds an idempotent edge upsert between two keyed nodes.
func (b *CypherBuilder) MergeEdge(fromLabel, fromKey string, fromValue any,
	toLabel, toKey string, toValue any, rel string, properties map[string]any) (string, error) {

	for _, id := range []string{fromLabel, fromKey, toLabel, toKey, rel} {
		if !validIdentifier(id) {
			return "", fmt.Errorf("invalid identifier: %s", id)
		}
	}

	fromParam := b.AddParam(fromValue)
	toParam := b.AddParam(toValue)

	var setClause string
	if len(properties) > 0 {
		clauses := make([]string, 0, len(properties))
		for key, value := range properties {
			if !validIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
			clauses = append(clauses, fmt.Sprintf("r.%s = %s", key, b.AddParam(value)))
		}
		setClause = " SET " + strings.Join(clauses, ", ")
	}

	return fmt.Sprintf(
		"MATCH (from:%s {%s: %s}) MATCH (to:%s {%s: %s}) MERGE (from)-[r:%s]->(to)%s",
		fromLabel, fromKey, fromParam, toLabel, toKey, toParam, rel, setClause,
	), nil
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
