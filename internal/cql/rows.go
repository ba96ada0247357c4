package cql

import "github.com/fugue-ai/rhema/internal/store"

// entityKind maps a queryable entity to the document kind that backs it.
// Parse already rejects any entity outside validEntities, so every call
// here is total; "scopes" backs onto scope.yaml itself (one row per
// scope, not a list field within it).
func entityKind(e Entity) store.Kind {
	switch e {
	case EntityTodos:
		return store.KindTodos
	case EntityInsights:
		return store.KindInsights
	case EntityDecisions:
		return store.KindDecisions
	case EntityPatterns:
		return store.KindPatterns
	case EntityConventions:
		return store.KindConventions
	case EntityKnowledge:
		return store.KindKnowledge
	default:
		return store.KindScope
	}
}

// rowsOf extracts the list of queryable rows from a loaded document,
// tagged with the owning scope so result rows can report provenance.
func rowsOf(scope string, doc any) []Row {
	switch d := doc.(type) {
	case *store.TodosDocument:
		rows := make([]Row, len(d.Todos))
		for i, t := range d.Todos {
			rows[i] = Row{Scope: scope, Value: t}
		}
		return rows
	case *store.InsightsDocument:
		rows := make([]Row, len(d.Insights))
		for i, v := range d.Insights {
			rows[i] = Row{Scope: scope, Value: v}
		}
		return rows
	case *store.DecisionsDocument:
		rows := make([]Row, len(d.Decisions))
		for i, v := range d.Decisions {
			rows[i] = Row{Scope: scope, Value: v}
		}
		return rows
	case *store.PatternsDocument:
		rows := make([]Row, len(d.Patterns))
		for i, v := range d.Patterns {
			rows[i] = Row{Scope: scope, Value: v}
		}
		return rows
	case *store.ConventionsDocument:
		rows := make([]Row, len(d.Conventions))
		for i, v := range d.Conventions {
			rows[i] = Row{Scope: scope, Value: v}
		}
		return rows
	case *store.KnowledgeDocument:
		rows := make([]Row, len(d.Knowledge))
		for i, v := range d.Knowledge {
			rows[i] = Row{Scope: scope, Value: v}
		}
		return rows
	case *store.ScopeDocument:
		return []Row{{Scope: scope, Value: *d}}
	default:
		return nil
	}
}

// Row is one queryable record, tagged with its owning scope.
type Row struct {
	Scope string
	Value any
}
