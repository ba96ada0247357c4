package cql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// regexCache memoizes compiled MATCHES patterns; anchored both ends
// (`^pattern$`) is this implementation's chosen deterministic semantics
// for §4.E's "unspecified but deterministic anchored-match" requirement,
// recorded in the GLOSSARY.
var regexCache = map[string]*regexp.Regexp{}

func anchoredRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CodeParseError, "invalid MATCHES pattern", err).WithDetails("pattern", pattern)
	}
	regexCache[pattern] = re
	return re, nil
}

// joinFields names the reference fields CQL resolves as a join (§12
// "JOIN-by-reference"): a flat array of entity IDs (store.Todo.Related,
// store.Entry.Related) pointing at other entries within the same scope,
// across any document kind.
var joinFields = map[string]bool{"related": true}

// predicateReferencesJoin reports whether pred touches a field under a
// joinFields root, so the executor only pays for building a scope's join
// index when a query actually needs it.
func predicateReferencesJoin(pred *Predicate) bool {
	if pred == nil {
		return false
	}
	if termReferencesJoin(pred.First) {
		return true
	}
	for _, tail := range pred.Rest {
		if termReferencesJoin(tail.Term) {
			return true
		}
	}
	return false
}

func termReferencesJoin(term Term) bool {
	_, _, ok := splitJoinField(term.Field)
	return ok
}

// splitJoinField splits "related.status" into ("related", "status", true);
// a field with no dot, or whose root isn't a known join field, returns
// ok=false so evalTerm falls back to a direct gjson lookup.
func splitJoinField(field string) (root, rest string, ok bool) {
	i := strings.IndexByte(field, '.')
	if i < 0 {
		return "", "", false
	}
	root = field[:i]
	if !joinFields[root] {
		return "", "", false
	}
	return root, field[i+1:], true
}

// evalPredicate evaluates pred against row's JSON representation, left to
// right per the grammar's flat `term (("AND"|"OR") term)*` shape (no
// operator precedence beyond strict left-to-right evaluation). joins maps
// entity ID -> that entity's own JSON within the current scope, used to
// resolve any term under a joinFields root; it may be nil when the query
// touches no such field.
func evalPredicate(pred *Predicate, rowJSON []byte, joins map[string]json.RawMessage) (bool, error) {
	if pred == nil {
		return true, nil
	}
	result, err := evalTerm(pred.First, rowJSON, joins)
	if err != nil {
		return false, err
	}
	for _, tail := range pred.Rest {
		next, err := evalTerm(tail.Term, rowJSON, joins)
		if err != nil {
			return false, err
		}
		switch tail.Conjunction {
		case "AND":
			result = result && next
		case "OR":
			result = result || next
		}
	}
	return result, nil
}

func evalTerm(term Term, rowJSON []byte, joins map[string]json.RawMessage) (bool, error) {
	if root, rest, ok := splitJoinField(term.Field); ok {
		return evalJoinTerm(root, rest, term, rowJSON, joins)
	}

	field := gjson.GetBytes(rowJSON, term.Field)
	var matched bool
	var err error

	switch term.Op {
	case OpIn:
		matched = false
		for _, v := range term.Values {
			if compareEqual(field, v) {
				matched = true
				break
			}
		}
	case OpContains:
		matched = containsValue(field, term.Value)
	case OpMatches:
		pattern, ok := term.Value.(string)
		if !ok {
			return false, rerrors.New(rerrors.CodeTypeMismatch, "MATCHES requires a string pattern").WithDetails("field", term.Field)
		}
		re, rerr := anchoredRegex(pattern)
		if rerr != nil {
			return false, rerr
		}
		matched = re.MatchString(field.String())
	case OpEq:
		matched = compareEqual(field, term.Value)
	case OpNeq:
		matched = !compareEqual(field, term.Value)
	case OpGt, OpLt, OpGte, OpLte:
		matched, err = compareOrdered(field, term.Value, term.Op)
	default:
		return false, rerrors.New(rerrors.CodeParseError, "unknown operator").WithDetails("op", string(term.Op))
	}
	if err != nil {
		return false, err
	}
	if term.Not {
		matched = !matched
	}
	return matched, nil
}

// evalJoinTerm resolves a "related.field" term: root ("related") names the
// row's own array-of-ID field, rest ("field") is evaluated against each
// referenced entity's JSON in turn via joins. Existence semantics: the
// term matches if any resolved entity satisfies rest op value; a dangling
// reference (no entry in joins) is skipped, not an error, consistent with
// cross-ref validation treating dangling references as a separate,
// explicit check rather than a query-time failure.
func evalJoinTerm(root, rest string, term Term, rowJSON []byte, joins map[string]json.RawMessage) (bool, error) {
	ids := gjson.GetBytes(rowJSON, root)
	if !ids.IsArray() {
		return term.Not, nil // nothing to join against: an empty/absent array never matches
	}

	sub := term
	sub.Field = rest
	sub.Not = false // negation is applied once below, not per candidate

	var matched bool
	var joinErr error
	ids.ForEach(func(_, idVal gjson.Result) bool {
		entityJSON, ok := joins[idVal.String()]
		if !ok {
			return true
		}
		m, err := evalTerm(sub, entityJSON, joins)
		if err != nil {
			joinErr = err
			return false
		}
		if m {
			matched = true
			return false
		}
		return true
	})
	if joinErr != nil {
		return false, joinErr
	}
	if term.Not {
		matched = !matched
	}
	return matched, nil
}

func compareEqual(field gjson.Result, value any) bool {
	switch v := value.(type) {
	case string:
		return field.String() == v
	case float64:
		return field.Num == v && field.Type == gjson.Number
	case bool:
		return field.Type == gjson.True && v || field.Type == gjson.False && !v
	default:
		return fmt.Sprint(field.Value()) == fmt.Sprint(value)
	}
}

func containsValue(field gjson.Result, value any) bool {
	needle := fmt.Sprint(value)
	if field.IsArray() {
		found := false
		field.ForEach(func(_, v gjson.Result) bool {
			if fmt.Sprint(v.Value()) == needle {
				found = true
				return false
			}
			return true
		})
		return found
	}
	return strings.Contains(field.String(), needle)
}

func compareOrdered(field gjson.Result, value any, op Op) (bool, error) {
	var a, b float64
	var err error
	switch v := value.(type) {
	case float64:
		b = v
		a = field.Num
		if field.Type != gjson.Number {
			a, err = strconv.ParseFloat(field.String(), 64)
			if err != nil {
				return compareOrderedStrings(field.String(), fmt.Sprint(value), op), nil
			}
		}
	default:
		return compareOrderedStrings(field.String(), fmt.Sprint(value), op), nil
	}
	switch op {
	case OpGt:
		return a > b, nil
	case OpLt:
		return a < b, nil
	case OpGte:
		return a >= b, nil
	case OpLte:
		return a <= b, nil
	}
	return false, nil
}

func compareOrderedStrings(a, b string, op Op) bool {
	switch op {
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGte:
		return a >= b
	case OpLte:
		return a <= b
	}
	return false
}

// toJSON renders value (a store document's row, e.g. store.Todo) into its
// JSON form once, so gjson path lookups can run against it without
// re-marshaling per field access.
func toJSON(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.CodeInternal, "failed to marshal row for query evaluation", err)
	}
	return data, nil
}
