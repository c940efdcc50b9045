// Package memkv is an in-memory kv.Store used by tests and local
// experimentation. It is deliberately not a general DynamoDB emulator: it
// understands exactly the small, fixed vocabulary of condition and update
// expressions this module's core packages emit (attribute_not_exists/
// attribute_exists guards, a single numeric comparison, SET assignments,
// one level of map-path indexing, and "+" arithmetic), modeled on the
// convention of small in-memory test doubles (a memory-backed storage client,
// miniredis) rather than on a string-expression engine of its own.
package memkv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/justapithecus/flowstate/kv"
)

type rowKey struct {
	table string
	pk    string
}

// Store is a mutex-guarded, in-memory kv.Store.
type Store struct {
	mu     sync.Mutex
	rows   map[rowKey]kv.Item
	tables map[string]kv.TableSchema
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rows:   make(map[rowKey]kv.Item),
		tables: make(map[string]kv.TableSchema),
	}
}

func primaryKeyString(k kv.Key) string {
	names := make([]string, 0, len(k))
	for n := range k {
		names = append(names, n)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%s=%v;", n, k[n])
	}
	return sb.String()
}

func itemKey(item kv.Item, schema kv.TableSchema, hasSchema bool) kv.Key {
	k := kv.Key{}
	if hasSchema {
		k[schema.HashKey.Name] = item[schema.HashKey.Name]
		if schema.RangeKey != nil {
			k[schema.RangeKey.Name] = item[schema.RangeKey.Name]
		}
		return k
	}
	// No registered schema (tests that skip CreateTable): every attribute
	// that looks like a key candidate participates. Callers in this repo
	// always pass a fully-keyed Key separately, so this path is only hit
	// by ConditionalPut, where we derive the key from well-known attribute
	// names used throughout lrc/durable/registration.
	for _, name := range []string{"K", "RowHash", "InstanceId", "StepNumber", "CallerId", "CallerStep"} {
		if v, ok := item[name]; ok {
			k[name] = v
		}
	}
	return k
}

func (s *Store) get(table string, key kv.Key) (kv.Item, bool) {
	row, ok := s.rows[rowKey{table: table, pk: primaryKeyString(key)}]
	return row, ok
}

// ConditionalPut implements kv.Store.
func (s *Store) ConditionalPut(_ context.Context, in kv.ConditionalPutInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, hasSchema := s.tables[in.Table]
	key := itemKey(in.Item, schema, hasSchema)
	existing, exists := s.get(in.Table, key)

	ok, err := evalCondition(in.Condition, in.Names, in.Values, existing, exists)
	if err != nil {
		return err
	}
	if !ok {
		return kv.ErrConditionalCheckFailed
	}

	item := make(kv.Item, len(in.Item))
	for k, v := range in.Item {
		item[k] = v
	}
	s.rows[rowKey{table: in.Table, pk: primaryKeyString(key)}] = item
	return nil
}

// ConditionalUpdate implements kv.Store.
func (s *Store) ConditionalUpdate(_ context.Context, in kv.UpdateInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.get(in.Table, in.Key)

	ok, err := evalCondition(in.Condition, in.Names, in.Values, existing, exists)
	if err != nil {
		return err
	}
	if !ok {
		return kv.ErrConditionalCheckFailed
	}

	item := existing
	if !exists {
		item = kv.Item{}
		for k, v := range in.Key {
			item[k] = v
		}
	} else {
		cloned := make(kv.Item, len(existing))
		for k, v := range existing {
			cloned[k] = v
		}
		item = cloned
	}

	if err := applyUpdate(in.Update, in.Names, in.Values, item); err != nil {
		return err
	}

	s.rows[rowKey{table: in.Table, pk: primaryKeyString(in.Key)}] = item
	return nil
}

// Get implements kv.Store.
func (s *Store) Get(_ context.Context, in kv.GetInput) (kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.get(in.Table, in.Key)
	if !ok {
		return nil, kv.ErrItemNotFound
	}
	if len(in.Projection) == 0 {
		cloned := make(kv.Item, len(row))
		for k, v := range row {
			cloned[k] = v
		}
		return cloned, nil
	}
	projected := make(kv.Item, len(in.Projection))
	for _, attr := range in.Projection {
		if v, ok := row[attr]; ok {
			projected[attr] = v
		}
	}
	return projected, nil
}

// Scan implements kv.Store. The only filter this module ever issues is an
// equality check against the partition key attribute "K" (or "CallerId"),
// named via in.Names/in.Values like a real DynamoDB FilterExpression.
func (s *Store) Scan(_ context.Context, in kv.ScanInput) ([]kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filterAttr, filterVal, err := parseEqualityFilter(in.Filter, in.Names, in.Values)
	if err != nil {
		return nil, err
	}

	var out []kv.Item
	for rk, row := range s.rows {
		if rk.table != in.Table {
			continue
		}
		if v, ok := row[filterAttr]; !ok || !valuesEqual(v, filterVal) {
			continue
		}
		if len(in.Projection) == 0 {
			cloned := make(kv.Item, len(row))
			for k, v := range row {
				cloned[k] = v
			}
			out = append(out, cloned)
			continue
		}
		projected := make(kv.Item, len(in.Projection))
		for _, attr := range in.Projection {
			if v, ok := row[attr]; ok {
				projected[attr] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

// CreateTable implements kv.Store. Idempotent: re-creating an existing
// table is a no-op success.
func (s *Store) CreateTable(_ context.Context, schema kv.TableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[schema.Table] = schema
	return nil
}

// DescribeTableStatus implements kv.Store. Tables are always immediately
// Active in-memory; there is no provisioning delay to simulate.
func (s *Store) DescribeTableStatus(_ context.Context, table string) (kv.TableStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		return "", kv.ErrTableNotFound
	}
	return kv.TableStatusActive, nil
}

func valuesEqual(a, b kv.AttributeValue) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// resolvePath splits a dotted attribute path like "Logs.#lk" into
// segments, substituting #-prefixed name placeholders via names.
func resolvePath(path string, names map[string]string) []string {
	parts := strings.Split(strings.TrimSpace(path), ".")
	for i, p := range parts {
		if strings.HasPrefix(p, "#") {
			if real, ok := names[p]; ok {
				parts[i] = real
			}
		}
	}
	return parts
}

func getNested(item kv.Item, segments []string) (kv.AttributeValue, bool) {
	if item == nil {
		return nil, false
	}
	if len(segments) == 1 {
		v, ok := item[segments[0]]
		return v, ok
	}
	nested, ok := item[segments[0]]
	if !ok {
		return nil, false
	}
	m, ok := nested.(map[string]kv.AttributeValue)
	if !ok {
		return nil, false
	}
	return getNested(m, segments[1:])
}

func setNested(item kv.Item, segments []string, val kv.AttributeValue) {
	if len(segments) == 1 {
		item[segments[0]] = val
		return
	}
	nested, ok := item[segments[0]].(map[string]kv.AttributeValue)
	if !ok {
		nested = make(map[string]kv.AttributeValue)
	}
	setNested(nested, segments[1:], val)
	item[segments[0]] = nested
}

// evalCondition evaluates the small fixed vocabulary of condition
// expressions this module emits (see package doc).
func evalCondition(expr string, names map[string]string, values map[string]kv.AttributeValue, item kv.Item, exists bool) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	var joiner string
	var clauses []string
	switch {
	case strings.Contains(expr, " AND "):
		joiner = "AND"
		clauses = strings.Split(expr, " AND ")
	case strings.Contains(expr, " OR "):
		joiner = "OR"
		clauses = strings.Split(expr, " OR ")
	default:
		joiner = "AND"
		clauses = []string{expr}
	}

	results := make([]bool, len(clauses))
	for i, c := range clauses {
		ok, err := evalClause(strings.TrimSpace(c), names, values, item, exists)
		if err != nil {
			return false, err
		}
		results[i] = ok
	}

	out := joiner == "AND"
	for _, r := range results {
		if joiner == "AND" {
			out = out && r
		} else {
			out = out || r
		}
	}
	return out, nil
}

func evalClause(clause string, names map[string]string, values map[string]kv.AttributeValue, item kv.Item, exists bool) (bool, error) {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists("):
		path := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
		if !exists {
			return true, nil
		}
		_, found := getNested(item, resolvePath(path, names))
		return !found, nil

	case strings.HasPrefix(clause, "attribute_exists("):
		path := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")")
		if !exists {
			return false, nil
		}
		_, found := getNested(item, resolvePath(path, names))
		return found, nil

	case strings.Contains(clause, "<"):
		parts := strings.SplitN(clause, "<", 2)
		lhs, placeholder := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if !exists {
			return true, nil // an absent row has an implicit LogSize of 0
		}
		v, found := getNested(item, resolvePath(lhs, names))
		if !found {
			return true, nil
		}
		lv, err := toInt64(v)
		if err != nil {
			return false, err
		}
		rv, err := toInt64(values[placeholder])
		if err != nil {
			return false, err
		}
		return lv < rv, nil

	case strings.Contains(clause, "="):
		parts := strings.SplitN(clause, "=", 2)
		lhs, placeholder := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if !exists {
			return false, nil
		}
		v, found := getNested(item, resolvePath(lhs, names))
		if !found {
			return false, nil
		}
		return valuesEqual(v, values[placeholder]), nil

	default:
		return false, fmt.Errorf("memkv: unsupported condition clause %q", clause)
	}
}

// applyUpdate applies a "SET a = b, c = d" update expression. Each clause's
// RHS is either a placeholder (":val"), a placeholder read through to a
// nested map path, or "<path> + :inc" arithmetic.
func applyUpdate(expr string, names map[string]string, values map[string]kv.AttributeValue, item kv.Item) error {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "SET ")

	for _, clause := range strings.Split(expr, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		eq := strings.SplitN(clause, "=", 2)
		if len(eq) != 2 {
			return fmt.Errorf("memkv: malformed update clause %q", clause)
		}
		lhs := resolvePath(strings.TrimSpace(eq[0]), names)
		rhs := strings.TrimSpace(eq[1])

		if strings.Contains(rhs, "+") {
			plus := strings.SplitN(rhs, "+", 2)
			base := strings.TrimSpace(plus[0])
			incPlaceholder := strings.TrimSpace(plus[1])

			baseVal, _ := getNested(item, resolvePath(base, names))
			baseInt, _ := toInt64(baseVal) // absent base treated as 0
			incInt, err := toInt64(values[incPlaceholder])
			if err != nil {
				return err
			}
			setNested(item, lhs, baseInt+incInt)
			continue
		}

		setNested(item, lhs, values[rhs])
	}
	return nil
}

func toInt64(v kv.AttributeValue) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("memkv: cannot convert %T to int64", v)
	}
}

// parseEqualityFilter extracts a single "#name = :value" filter expression
// (the only shape lrc.GetSkeleton issues).
func parseEqualityFilter(expr string, names map[string]string, values map[string]kv.AttributeValue) (string, kv.AttributeValue, error) {
	expr = strings.TrimSpace(expr)
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("memkv: unsupported scan filter %q", expr)
	}
	lhs := strings.TrimSpace(parts[0])
	placeholder := strings.TrimSpace(parts[1])
	if real, ok := names[lhs]; ok {
		lhs = real
	}
	return lhs, values[placeholder], nil
}
