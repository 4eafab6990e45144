package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr/vm"
)

// EdgeEvaluator decides whether a completed predecessor's edge to a
// successor is satisfied given the predecessor's output (spec.md §4.3).
type EdgeEvaluator struct {
	cache *conditionCache
}

// NewEdgeEvaluator constructs an EdgeEvaluator with its own compiled-program
// cache.
func NewEdgeEvaluator() *EdgeEvaluator {
	return &EdgeEvaluator{cache: newConditionCache(256)}
}

// Satisfied reports whether edge e is satisfied given predecessor output o.
// A sequence edge is always satisfied; a conditional edge is satisfied iff
// every one of its conditions holds (conjunction).
func (ev *EdgeEvaluator) Satisfied(e Edge, output map[string]any) bool {
	if e.Kind == EdgeKindSequence {
		return true
	}
	for _, cond := range e.Conditions {
		if !ev.evaluate(cond, output) {
			return false
		}
	}
	return true
}

func (ev *EdgeEvaluator) evaluate(cond Condition, output map[string]any) bool {
	fieldValue, defined := extractField(output, cond.Field)

	switch cond.Operator {
	case OpEquals:
		return defined && valuesEqual(fieldValue, cond.Value)
	case OpNotEquals:
		return !(defined && valuesEqual(fieldValue, cond.Value))
	case OpGreaterThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(cond.Value)
		return defined && aok && bok && ev.runNumericCompare(">", a, b)
	case OpLessThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(cond.Value)
		return defined && aok && bok && ev.runNumericCompare("<", a, b)
	case OpIn:
		return defined && memberOf(fieldValue, cond.Value)
	case OpContains:
		fs, fok := fieldValue.(string)
		cs, cok := cond.Value.(string)
		return defined && fok && cok && strings.Contains(fs, cs)
	case OpWithinHours:
		return defined && ev.withinHours(fieldValue, cond.Value)
	default:
		return false
	}
}

// runNumericCompare evaluates "a <op> b" through the compiled-program cache
// rather than a hand-rolled switch, so the comparison family shares the
// same expr-backed path as withinHours.
func (ev *EdgeEvaluator) runNumericCompare(op string, a, b float64) bool {
	expression := "a " + op + " b"
	program, err := ev.compile(expression)
	if err != nil {
		return false
	}
	result, err := vm.Run(program, map[string]any{"a": a, "b": b})
	if err != nil {
		return false
	}
	ok, _ := result.(bool)
	return ok
}

func (ev *EdgeEvaluator) withinHours(fieldValue, configured any) bool {
	ts, ok := parseTimestamp(fieldValue)
	if !ok {
		return false
	}
	hours, ok := toFloat(configured)
	if !ok {
		return false
	}

	elapsedSeconds := time.Since(ts).Seconds()
	program, err := ev.compile("elapsed <= hours * 3600")
	if err != nil {
		return false
	}
	result, err := vm.Run(program, map[string]any{"elapsed": elapsedSeconds, "hours": hours})
	if err != nil {
		return false
	}
	ok2, _ := result.(bool)
	return ok2
}

func (ev *EdgeEvaluator) compile(expression string) (*vm.Program, error) {
	return ev.cache.compileAndCache(expression, map[string]any{"a": float64(0), "b": float64(0), "elapsed": float64(0), "hours": float64(0)})
}

// extractField walks a dotted path into a nested map; any missing segment
// yields (nil, false).
func extractField(output map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur any = output
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func memberOf(value, sequence any) bool {
	items, ok := sequence.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
