// Package store provides typed, schema-validated access to the six YAML
// context documents per scope (§4.D): todos, insights, decisions,
// patterns, conventions and knowledge, plus each scope's own scope.yaml.
package store

import "time"

// Kind is one of the seven on-disk document names a scope owns.
type Kind string

const (
	KindScope       Kind = "scope"
	KindTodos       Kind = "todos"
	KindInsights    Kind = "insights"
	KindDecisions   Kind = "decisions"
	KindPatterns    Kind = "patterns"
	KindConventions Kind = "conventions"
	KindKnowledge   Kind = "knowledge"
)

// Kinds lists every document kind a scope owns, in the fixed order they're
// created and validated.
var Kinds = []Kind{KindScope, KindTodos, KindInsights, KindDecisions, KindPatterns, KindConventions, KindKnowledge}

func (k Kind) filename() string { return string(k) + ".yaml" }

// ScopeType is the fixed enum for a scope's role (§3).
type ScopeType string

const (
	ScopeService        ScopeType = "service"
	ScopeApp            ScopeType = "app"
	ScopeLibrary        ScopeType = "library"
	ScopeComponent      ScopeType = "component"
	ScopeInfrastructure ScopeType = "infrastructure"
	ScopeDocumentation  ScopeType = "documentation"
	ScopeTool           ScopeType = "tool"
)

// DependencyType is the fixed enum for a ScopeDependency's relation kind.
type DependencyType string

const (
	DepParent   DependencyType = "parent"
	DepChild    DependencyType = "child"
	DepPeer     DependencyType = "peer"
	DepDev      DependencyType = "dev"
	DepOptional DependencyType = "optional"
)

// ScopeDependency is one edge declared in a scope's own scope.yaml, before
// resolution (see scopegraph for the resolved form).
type ScopeDependency struct {
	Target     string         `yaml:"target" json:"target"`
	Version    string         `yaml:"version" json:"version"`
	Type       DependencyType `yaml:"type" json:"type"`
	Constraint string         `yaml:"constraint" json:"constraint"`
}

// ScopeDocument is scope.yaml: the scope's own identity and metadata.
type ScopeDocument struct {
	Name         string            `yaml:"name" json:"name"`
	Type         ScopeType         `yaml:"type" json:"type"`
	Version      string            `yaml:"version" json:"version"`
	Metadata     map[string]any    `yaml:"metadata" json:"metadata"`
	Dependencies []ScopeDependency `yaml:"dependencies" json:"dependencies"`
}

// TodoStatus is todos.yaml's status enum.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoBlocked    TodoStatus = "blocked"
	TodoCancelled  TodoStatus = "cancelled"
)

// TodoPriority is todos.yaml's priority enum.
type TodoPriority string

const (
	PriorityLow      TodoPriority = "low"
	PriorityMedium   TodoPriority = "medium"
	PriorityHigh     TodoPriority = "high"
	PriorityCritical TodoPriority = "critical"
)

// Todo is one entry in todos.yaml.
type Todo struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	Status      TodoStatus   `yaml:"status" json:"status"`
	Priority    TodoPriority `yaml:"priority" json:"priority"`
	Assignee    string       `yaml:"assignee" json:"assignee"`
	DueDate     *time.Time   `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	Tags        []string     `yaml:"tags" json:"tags"`
	Related     []string     `yaml:"related" json:"related"`
}

// TodosDocument is todos.yaml.
type TodosDocument struct {
	Todos []Todo `yaml:"todos" json:"todos"`
}

// Confidence is insights.yaml's confidence enum.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Insight is one entry in insights.yaml.
type Insight struct {
	ID           string     `yaml:"id" json:"id"`
	Title        string     `yaml:"title" json:"title"`
	Finding      string     `yaml:"finding" json:"finding"`
	Impact       string     `yaml:"impact" json:"impact"`
	Solution     string     `yaml:"solution" json:"solution"`
	Confidence   Confidence `yaml:"confidence" json:"confidence"`
	Evidence     []string   `yaml:"evidence" json:"evidence"`
	RelatedFiles []string   `yaml:"related_files" json:"related_files"`
	Category     string     `yaml:"category" json:"category"`
	RecordedAt   time.Time  `yaml:"recorded_at" json:"recorded_at"`
}

// InsightsDocument is insights.yaml.
type InsightsDocument struct {
	Insights []Insight `yaml:"insights" json:"insights"`
}

// DecisionStatus is decisions.yaml's status enum.
type DecisionStatus string

const (
	DecisionProposed    DecisionStatus = "proposed"
	DecisionApproved    DecisionStatus = "approved"
	DecisionRejected    DecisionStatus = "rejected"
	DecisionImplemented DecisionStatus = "implemented"
	DecisionDeprecated  DecisionStatus = "deprecated"
)

// Decision is one entry in decisions.yaml.
type Decision struct {
	ID                    string         `yaml:"id" json:"id"`
	Title                 string         `yaml:"title" json:"title"`
	Description           string         `yaml:"description" json:"description"`
	Status                DecisionStatus `yaml:"status" json:"status"`
	Rationale             string         `yaml:"rationale" json:"rationale"`
	AlternativesConsidered []string      `yaml:"alternatives_considered" json:"alternatives_considered"`
	Impact                string         `yaml:"impact" json:"impact"`
	DecidedAt             time.Time      `yaml:"decided_at" json:"decided_at"`
}

// DecisionsDocument is decisions.yaml.
type DecisionsDocument struct {
	Decisions []Decision `yaml:"decisions" json:"decisions"`
}

// Entry is the shared shape of patterns.yaml, conventions.yaml and
// knowledge.yaml (§6: "analogous structured lists").
type Entry struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Category    string    `yaml:"category" json:"category"`
	Tags        []string  `yaml:"tags" json:"tags"`
	Related     []string  `yaml:"related" json:"related"`
	RecordedAt  time.Time `yaml:"recorded_at" json:"recorded_at"`
}

// PatternsDocument is patterns.yaml.
type PatternsDocument struct {
	Patterns []Entry `yaml:"patterns" json:"patterns"`
}

// ConventionsDocument is conventions.yaml.
type ConventionsDocument struct {
	Conventions []Entry `yaml:"conventions" json:"conventions"`
}

// KnowledgeDocument is knowledge.yaml.
type KnowledgeDocument struct {
	Knowledge []Entry `yaml:"knowledge" json:"knowledge"`
}

// newDocument returns a zero-value document for kind, used as the
// unmarshal target and as the empty value when a document doesn't exist
// yet for a newly created scope.
func newDocument(kind Kind) any {
	switch kind {
	case KindScope:
		return &ScopeDocument{}
	case KindTodos:
		return &TodosDocument{}
	case KindInsights:
		return &InsightsDocument{}
	case KindDecisions:
		return &DecisionsDocument{}
	case KindPatterns:
		return &PatternsDocument{}
	case KindConventions:
		return &ConventionsDocument{}
	case KindKnowledge:
		return &KnowledgeDocument{}
	default:
		return nil
	}
}
