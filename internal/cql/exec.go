package cql

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/store"
)

// Loader is the subset of *store.Store the executor needs: loading one
// document kind for one scope.
type Loader interface {
	Load(ctx context.Context, scope string, kind store.Kind) (any, error)
}

// Cache is the subset of *cache.MultiTier the executor needs for the
// §4.E "cache-keyed lookup (§4.F)" execution step.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Result is Execute's return value: the matched rows plus per-scope
// read-failure metadata (§4.E "partial failures... mark those scopes in
// the result metadata and continue"). A Result round-tripped through the
// cache has each Row's Value as a generic map rather than its original
// typed struct (Go's encoding/json can't recover a concrete type behind an
// any field); callers needing a typed value re-decode Row.Value via
// json.Marshal+Unmarshal into the type they expect, same as any JSON-wire
// consumer would.
type Result struct {
	Rows             []Row
	UnreadableScopes []string
	Truncated        bool
}

// ResultTTL is how long a query result stays cached before re-execution;
// any write invalidates it immediately regardless (§4.F coherency).
const ResultTTL = 30 * time.Second

// Executor runs parsed queries against a document loader with an optional
// result cache in front (§4.F integration point).
type Executor struct {
	load   Loader
	cache  Cache
	strict bool
}

// NewExecutor builds an Executor over load (typically a *store.Store).
// cache may be nil to skip caching. strict controls whether an unreadable
// scope aborts the whole query (true) or is skipped and reported (false,
// the default lenient mode per §4.E).
func NewExecutor(load Loader, cache Cache, strict bool) *Executor {
	return &Executor{load: load, cache: cache, strict: strict}
}

// Execute implements §4.E's pipeline: parse (Parse on queryText) ->
// logical plan -> cache-keyed lookup -> physical execution.
func (e *Executor) Execute(ctx context.Context, queryText string, scopeNames []string) (Result, error) {
	q, err := Parse(queryText)
	if err != nil {
		return Result{}, err
	}
	plan := PlanQuery(q, scopeNames)

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, plan.CacheKey(queryText)); ok {
			var result Result
			if err := json.Unmarshal(cached, &result); err == nil {
				return result, nil
			}
		}
	}

	result, err := e.executePlan(ctx, plan)
	if err != nil {
		return Result{}, err
	}

	if e.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			_ = e.cache.Put(ctx, plan.CacheKey(queryText), data, ResultTTL)
		}
	}
	return result, nil
}

func (e *Executor) executePlan(ctx context.Context, plan Plan) (Result, error) {
	var result Result
	var allRows []Row

	needsJoin := predicateReferencesJoin(plan.Query.Where)

	for _, scope := range plan.Scopes {
		select {
		case <-ctx.Done():
			return Result{}, rerrors.Wrap(rerrors.CodeCancelled, "query cancelled", ctx.Err())
		default:
		}

		var joins map[string]json.RawMessage
		if needsJoin {
			idx, err := e.buildJoinIndex(ctx, scope)
			if err != nil {
				if e.strict {
					return Result{}, err
				}
				result.UnreadableScopes = append(result.UnreadableScopes, scope)
				continue
			}
			joins = idx
		}

		doc, err := e.load.Load(ctx, scope, entityKind(plan.Query.Entity))
		if err != nil {
			if e.strict {
				return Result{}, err
			}
			result.UnreadableScopes = append(result.UnreadableScopes, scope)
			continue
		}
		rows := rowsOf(scope, doc)
		for _, row := range rows {
			rowJSON, err := toJSON(row.Value)
			if err != nil {
				return Result{}, err
			}
			matched, err := evalPredicate(plan.Query.Where, rowJSON, joins)
			if err != nil {
				return Result{}, err
			}
			if matched {
				allRows = append(allRows, row)
			}
		}
	}

	if plan.Query.OrderBy != "" {
		if err := sortRows(allRows, plan.Query.OrderBy, plan.Query.Direction); err != nil {
			return Result{}, err
		}
	}

	if plan.Query.Limit != nil && len(allRows) > *plan.Query.Limit {
		allRows = allRows[:*plan.Query.Limit]
		result.Truncated = true
	}

	result.Rows = allRows
	return result, nil
}

// buildJoinIndex loads every document kind for scope (except scope.yaml
// itself, which carries no ID-addressable entries) and indexes each entry
// by its ID, giving CQL's "related.field" join terms something to resolve
// against regardless of which kind the reference happens to target (§12
// "JOIN-by-reference").
func (e *Executor) buildJoinIndex(ctx context.Context, scope string) (map[string]json.RawMessage, error) {
	index := make(map[string]json.RawMessage)
	for _, kind := range store.Kinds {
		if kind == store.KindScope {
			continue
		}
		doc, err := e.load.Load(ctx, scope, kind)
		if err != nil {
			if rerrors.Is(err, rerrors.CodeNotFound) {
				continue // this scope simply has no document of this kind yet
			}
			return nil, err
		}
		for _, row := range rowsOf(scope, doc) {
			raw, err := toJSON(row.Value)
			if err != nil {
				return nil, err
			}
			if id := gjson.GetBytes(raw, "id").String(); id != "" {
				index[id] = raw
			}
		}
	}
	return index, nil
}

func sortRows(rows []Row, field string, dir SortDirection) error {
	type keyed struct {
		row Row
		key gjson.Result
	}
	keys := make([]keyed, len(rows))
	for i, r := range rows {
		data, err := toJSON(r.Value)
		if err != nil {
			return err
		}
		keys[i] = keyed{row: r, key: gjson.GetBytes(data, field)}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		less := keyLess(keys[i].key, keys[j].key)
		if dir == Descending {
			return !less && !keyEqual(keys[i].key, keys[j].key)
		}
		return less
	})
	for i, k := range keys {
		rows[i] = k.row
	}
	return nil
}

func keyLess(a, b gjson.Result) bool {
	if a.Type == gjson.Number && b.Type == gjson.Number {
		return a.Num < b.Num
	}
	return a.String() < b.String()
}

func keyEqual(a, b gjson.Result) bool {
	if a.Type == gjson.Number && b.Type == gjson.Number {
		return a.Num == b.Num
	}
	return a.String() == b.String()
}
