package cql

import (
	"sort"
	"strings"
)

// Plan is the logical plan produced from a parsed Query: which scopes to
// scan (in deterministic lexicographic order, §4.E semantics) and which
// document kind backs the entity.
type Plan struct {
	Query  Query
	Scopes []string
}

// PlanQuery builds the logical plan for q against the given candidate
// scope names, sorting them lexicographically per §4.E's cross-scope
// ordering requirement.
func PlanQuery(q Query, scopeNames []string) Plan {
	scopes := append([]string(nil), scopeNames...)
	sort.Strings(scopes)
	return Plan{Query: q, Scopes: scopes}
}

// CacheKey builds the §4.F cache-keyed-lookup key for this plan: the
// entity, scope set and query text together, so distinct queries never
// collide and an unchanged query against an unchanged scope set is a hit.
func (p Plan) CacheKey(queryText string) string {
	var b strings.Builder
	b.WriteString("cql:")
	b.WriteString(string(p.Query.Entity))
	b.WriteString(":")
	b.WriteString(strings.Join(p.Scopes, ","))
	b.WriteString(":")
	b.WriteString(queryText)
	return b.String()
}
