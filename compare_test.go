package fowl

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCompareValues(t *testing.T) {
	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Millisecond)
	tests := []struct {
		a, b any
		c    int
		ok   bool
	}{
		{"a", "b", -1, true},
		{"b", "b", 0, true},
		{int64(2), 1, 1, true},
		{int64(1), 1.5, -1, true},
		{1.5, int32(1), 1, true},
		{int64(1<<62 + 1), int64(1 << 62), 1, true},
		{json.Number("7"), int64(7), 0, true},
		{false, true, -1, true},
		{t1, t2, -1, true},
		{t2, &t1, 1, true},
		{nil, nil, 0, true},
		{nil, 1, 0, false},
		{"1", 1, 0, false},
		{map[string]any{}, map[string]any{}, 0, false},
		{t1, "2020", 0, false},
	}
	for _, tt := range tests {
		c, ok := compareValues(tt.a, tt.b)
		if c != tt.c || ok != tt.ok {
			t.Errorf("** compareValues(%v, %v) = %d, %v, wanted %d, %v", tt.a, tt.b, c, ok, tt.c, tt.ok)
		}
	}
}

func TestEqualValues(t *testing.T) {
	if !equalValues(map[string]any{"a": []any{int64(1), "x"}}, map[string]any{"a": []any{1, "x"}}) {
		t.Errorf("** nested values with mixed int types should be equal")
	}
	if equalValues(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}) {
		t.Errorf("** maps of different size should differ")
	}
	if equalValues([]any{1}, map[string]any{"0": 1}) {
		t.Errorf("** list and map should differ")
	}
	if !equalValues([]byte("x"), []byte("x")) {
		t.Errorf("** equal byte slices should be equal")
	}
}

func TestOperator_match(t *testing.T) {
	tests := []struct {
		op      Operator
		v       any
		present bool
		want    any
		e       bool
	}{
		{OpEq, 30, true, int64(30), true},
		{OpEq, nil, false, nil, false},
		{OpNe, nil, false, 30, true},
		{OpNe, 30, true, 30, false},
		{OpGt, 30, true, 30, false},
		{OpGte, 30, true, 30, true},
		{OpLt, 29.9, true, 30, true},
		{OpLte, 31, true, 30, false},
		{OpGt, "b", true, "a", true},
		{OpGt, "b", true, 1, false},
		{OpGt, nil, false, 1, false},
		{OpNin, 1, true, 1, false},
	}
	for _, tt := range tests {
		if a := tt.op.match(tt.v, tt.present, tt.want); a != tt.e {
			t.Errorf("** %v.match(%v, %v, %v) = %v, wanted %v", tt.op, tt.v, tt.present, tt.want, a, tt.e)
		}
	}
}
