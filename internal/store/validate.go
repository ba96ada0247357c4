package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// Level is how thorough a Validate call should be (§4.D).
type Level string

const (
	LevelSchema  Level = "schema"
	LevelCrossRef Level = "cross-ref"
	LevelFull    Level = "full"
)

// Issue is one validation finding.
type Issue struct {
	Kind    Kind   `json:"kind"`
	EntryID string `json:"entry_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Report is the result of Validate: empty Issues means the scope passed
// every check run at the requested level.
type Report struct {
	Scope  string  `json:"scope"`
	Level  Level   `json:"level"`
	Issues []Issue `json:"issues"`
}

func (r Report) OK() bool { return len(r.Issues) == 0 }

// Validate runs schema checks (required IDs, enum membership), and at
// LevelCrossRef/LevelFull also cross-reference resolution; LevelFull
// additionally runs the consistency checks (unique IDs, parseable
// timestamps).
func (s *Store) Validate(ctx context.Context, scope string, level Level) (Report, error) {
	report := Report{Scope: scope, Level: level}

	docs := make(map[Kind]any, len(Kinds))
	for _, k := range Kinds {
		doc, err := s.Load(ctx, scope, k)
		if err != nil {
			return Report{}, err
		}
		docs[k] = doc
	}

	report.Issues = append(report.Issues, schemaIssues(docs)...)

	if level == LevelCrossRef || level == LevelFull {
		ids := collectIDs(docs)
		report.Issues = append(report.Issues, crossRefIssues(docs, ids)...)
	}
	if level == LevelFull {
		report.Issues = append(report.Issues, consistencyIssues(docs)...)
	}

	return report, nil
}

func schemaIssues(docs map[Kind]any) []Issue {
	var issues []Issue

	if sd, ok := docs[KindScope].(*ScopeDocument); ok && sd.Name != "" {
		switch sd.Type {
		case ScopeService, ScopeApp, ScopeLibrary, ScopeComponent, ScopeInfrastructure, ScopeDocumentation, ScopeTool, "":
		default:
			issues = append(issues, Issue{Kind: KindScope, Field: "type", Message: fmt.Sprintf("invalid scope type %q", sd.Type)})
		}
		for i, dep := range sd.Dependencies {
			if dep.Target == "" {
				issues = append(issues, Issue{Kind: KindScope, Field: fmt.Sprintf("dependencies[%d].target", i), Message: "dependency target is required"})
			}
		}
	}

	if td, ok := docs[KindTodos].(*TodosDocument); ok {
		for _, t := range td.Todos {
			if t.ID == "" {
				issues = append(issues, Issue{Kind: KindTodos, Message: "todo missing id"})
				continue
			}
			switch t.Status {
			case TodoPending, TodoInProgress, TodoCompleted, TodoBlocked, TodoCancelled:
			default:
				issues = append(issues, Issue{Kind: KindTodos, EntryID: t.ID, Field: "status", Message: fmt.Sprintf("invalid status %q", t.Status)})
			}
			switch t.Priority {
			case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
			default:
				issues = append(issues, Issue{Kind: KindTodos, EntryID: t.ID, Field: "priority", Message: fmt.Sprintf("invalid priority %q", t.Priority)})
			}
		}
	}

	if id, ok := docs[KindInsights].(*InsightsDocument); ok {
		for _, in := range id.Insights {
			if in.ID == "" {
				issues = append(issues, Issue{Kind: KindInsights, Message: "insight missing id"})
				continue
			}
			switch in.Confidence {
			case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
			default:
				issues = append(issues, Issue{Kind: KindInsights, EntryID: in.ID, Field: "confidence", Message: fmt.Sprintf("invalid confidence %q", in.Confidence)})
			}
		}
	}

	if dd, ok := docs[KindDecisions].(*DecisionsDocument); ok {
		for _, d := range dd.Decisions {
			if d.ID == "" {
				issues = append(issues, Issue{Kind: KindDecisions, Message: "decision missing id"})
				continue
			}
			switch d.Status {
			case DecisionProposed, DecisionApproved, DecisionRejected, DecisionImplemented, DecisionDeprecated:
			default:
				issues = append(issues, Issue{Kind: KindDecisions, EntryID: d.ID, Field: "status", Message: fmt.Sprintf("invalid status %q", d.Status)})
			}
		}
	}

	for _, k := range []Kind{KindPatterns, KindConventions, KindKnowledge} {
		for _, e := range entriesOf(docs, k) {
			if e.ID == "" {
				issues = append(issues, Issue{Kind: k, Message: "entry missing id"})
			}
		}
	}

	return issues
}

// entriesOf returns the []Entry slice inside patterns/conventions/knowledge
// regardless of which concrete document type it came from.
func entriesOf(docs map[Kind]any, k Kind) []Entry {
	switch k {
	case KindPatterns:
		if d, ok := docs[k].(*PatternsDocument); ok {
			return d.Patterns
		}
	case KindConventions:
		if d, ok := docs[k].(*ConventionsDocument); ok {
			return d.Conventions
		}
	case KindKnowledge:
		if d, ok := docs[k].(*KnowledgeDocument); ok {
			return d.Knowledge
		}
	}
	return nil
}

// collectIDs builds the set of every entry ID across a scope's documents,
// the resolution target for "related" cross-reference fields.
func collectIDs(docs map[Kind]any) map[string]bool {
	ids := make(map[string]bool)
	if td, ok := docs[KindTodos].(*TodosDocument); ok {
		for _, t := range td.Todos {
			ids[t.ID] = true
		}
	}
	if id, ok := docs[KindInsights].(*InsightsDocument); ok {
		for _, in := range id.Insights {
			ids[in.ID] = true
		}
	}
	if dd, ok := docs[KindDecisions].(*DecisionsDocument); ok {
		for _, d := range dd.Decisions {
			ids[d.ID] = true
		}
	}
	for _, k := range []Kind{KindPatterns, KindConventions, KindKnowledge} {
		for _, e := range entriesOf(docs, k) {
			ids[e.ID] = true
		}
	}
	return ids
}

// crossRefIssues resolves every "related" field via JSONPath against the
// document set converted to a plain JSON tree, flagging dangling
// references (§4.D cross-reference validation).
func crossRefIssues(docs map[Kind]any, ids map[string]bool) []Issue {
	var issues []Issue

	raw, err := json.Marshal(docs)
	if err != nil {
		return []Issue{{Message: fmt.Sprintf("internal: failed to marshal documents for cross-ref check: %v", err)}}
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return []Issue{{Message: fmt.Sprintf("internal: failed to decode document tree: %v", err)}}
	}

	related, err := jsonpath.Get("$..related", tree)
	if err != nil {
		return nil // no "related" fields present anywhere is not an error
	}
	for _, ref := range flattenStrings(related) {
		if ref != "" && !ids[ref] {
			issues = append(issues, Issue{Field: "related", Message: fmt.Sprintf("dangling reference %q", ref)})
		}
	}
	return issues
}

// flattenStrings collects every string leaf out of an arbitrarily-nested
// []any tree, since a JSONPath match for "$..related" may return either the
// single matched array directly or a slice of matched arrays depending on
// how many fields in the document tree matched.
func flattenStrings(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, flattenStrings(item)...)
		}
		return out
	default:
		return nil
	}
}

// consistencyIssues checks ID uniqueness within a scope and that every
// recorded timestamp parses (§4.D consistency).
func consistencyIssues(docs map[Kind]any) []Issue {
	var issues []Issue
	seen := make(map[string]Kind)

	record := func(kind Kind, id string) {
		if id == "" {
			return
		}
		if prior, ok := seen[id]; ok {
			issues = append(issues, Issue{Kind: kind, EntryID: id, Message: fmt.Sprintf("id %q duplicated across %s and %s", id, prior, kind)})
			return
		}
		seen[id] = kind
	}

	if td, ok := docs[KindTodos].(*TodosDocument); ok {
		for _, t := range td.Todos {
			record(KindTodos, t.ID)
		}
	}
	if id, ok := docs[KindInsights].(*InsightsDocument); ok {
		for _, in := range id.Insights {
			record(KindInsights, in.ID)
			if in.RecordedAt.IsZero() {
				issues = append(issues, Issue{Kind: KindInsights, EntryID: in.ID, Field: "recorded_at", Message: "timestamp missing or unparseable"})
			}
		}
	}
	if dd, ok := docs[KindDecisions].(*DecisionsDocument); ok {
		for _, d := range dd.Decisions {
			record(KindDecisions, d.ID)
			if d.DecidedAt.IsZero() {
				issues = append(issues, Issue{Kind: KindDecisions, EntryID: d.ID, Field: "decided_at", Message: "timestamp missing or unparseable"})
			}
		}
	}
	for _, k := range []Kind{KindPatterns, KindConventions, KindKnowledge} {
		for _, e := range entriesOf(docs, k) {
			record(k, e.ID)
			if e.RecordedAt.IsZero() {
				issues = append(issues, Issue{Kind: k, EntryID: e.ID, Field: "recorded_at", Message: "timestamp missing or unparseable"})
			}
		}
	}
	return issues
}

// ParseTimestamp parses a raw string field as RFC3339, for callers (the
// query engine's literal comparisons) that don't go through YAML's native
// time.Time decoding.
func ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, rerrors.Wrap(rerrors.CodeParseError, "timestamp is not RFC3339", err)
	}
	return t, nil
}
