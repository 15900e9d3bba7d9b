package vectorindex

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate 是一个元数据等值条件。
type Predicate struct {
	Key   string
	Value any
}

// Eq 构造 key == value 条件。
func Eq(key string, value any) Predicate {
	return Predicate{Key: key, Value: value}
}

// Filter 是若干等值条件的合取（AND）。零值表示不过滤。
type Filter struct {
	preds []Predicate
}

// NewFilter 校验并组合条件：键不能为空或重复，值必须是标量。
func NewFilter(preds ...Predicate) (Filter, error) {
	seen := make(map[string]struct{}, len(preds))
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if strings.TrimSpace(p.Key) == "" {
			return Filter{}, fmt.Errorf("%w: empty key", ErrInvalidFilter)
		}
		if _, dup := seen[p.Key]; dup {
			return Filter{}, fmt.Errorf("%w: duplicate key %q", ErrInvalidFilter, p.Key)
		}
		if !isScalar(p.Value) {
			return Filter{}, fmt.Errorf("%w: key %q has non-scalar value %T", ErrInvalidFilter, p.Key, p.Value)
		}
		if s, ok := p.Value.(string); ok && s == "" {
			return Filter{}, fmt.Errorf("%w: key %q has empty value", ErrInvalidFilter, p.Key)
		}
		seen[p.Key] = struct{}{}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return Filter{preds: out}, nil
}

// MustFilter 同 NewFilter，出错时 panic。仅用于键值为常量的场景。
func MustFilter(preds ...Predicate) Filter {
	f, err := NewFilter(preds...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Filter) IsEmpty() bool { return len(f.preds) == 0 }

// Predicates 返回条件副本，按键排序。
func (f Filter) Predicates() []Predicate {
	out := make([]Predicate, len(f.preds))
	copy(out, f.preds)
	return out
}

// Matches 判断元数据是否满足全部条件。数值统一按 float64 比较。
func (f Filter) Matches(md Metadata) bool {
	for _, p := range f.preds {
		v, ok := md[p.Key]
		if !ok || !scalarEqual(v, p.Value) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	parts := make([]string, len(f.preds))
	for i, p := range f.preds {
		parts[i] = fmt.Sprintf("%s=%v", p.Key, p.Value)
	}
	return "{" + strings.Join(parts, " AND ") + "}"
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func scalarEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	return a == b
}
