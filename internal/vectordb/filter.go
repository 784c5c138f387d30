package vectordb

import "encoding/json"

// Filter is the backend-native boolean expression over field conditions.
// It marshals directly into Qdrant's filter wire shape.
type Filter struct {
	Must      []Condition `json:"must,omitempty"`
	Should    []Condition `json:"should,omitempty"`
	MustNot   []Condition `json:"must_not,omitempty"`
	MinShould *MinShould  `json:"min_should,omitempty"`
}

// MinShould requires at least MinCount of Conditions to match.
type MinShould struct {
	Conditions []Condition `json:"conditions"`
	MinCount   int         `json:"min_count"`
}

// IsEmpty reports whether the filter carries no conditions at all.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0 &&
		(f.MinShould == nil || len(f.MinShould.Conditions) == 0)
}

// Condition is one leaf (or nested filter) of the tree.
type Condition struct {
	Key string

	MatchValue  interface{}
	MatchAny    []interface{}
	MatchExcept []interface{}

	Range         *Range
	DatetimeRange *Range

	ValuesCount *Range

	IsEmpty bool
	IsNull  bool

	Nested *Filter
}

// Range bounds a numeric or datetime field. Values are left as interface{}
// so both float64 and RFC3339 strings pass through unmodified.
type Range struct {
	GT  interface{} `json:"gt,omitempty"`
	GTE interface{} `json:"gte,omitempty"`
	LT  interface{} `json:"lt,omitempty"`
	LTE interface{} `json:"lte,omitempty"`
}

// MarshalJSON renders the condition in Qdrant's wire format.
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Nested != nil {
		return json.Marshal(c.Nested)
	}
	if c.IsEmpty {
		return json.Marshal(map[string]interface{}{
			"is_empty": map[string]string{"key": c.Key},
		})
	}
	if c.IsNull {
		return json.Marshal(map[string]interface{}{
			"is_null": map[string]string{"key": c.Key},
		})
	}

	body := map[string]interface{}{"key": c.Key}
	switch {
	case c.MatchValue != nil:
		body["match"] = map[string]interface{}{"value": c.MatchValue}
	case c.MatchAny != nil:
		body["match"] = map[string]interface{}{"any": c.MatchAny}
	case c.MatchExcept != nil:
		body["match"] = map[string]interface{}{"except": c.MatchExcept}
	case c.Range != nil:
		body["range"] = c.Range
	case c.DatetimeRange != nil:
		body["datetime_range"] = c.DatetimeRange
	case c.ValuesCount != nil:
		body["values_count"] = c.ValuesCount
	}
	return json.Marshal(body)
}

// Builder helpers keep call sites short.

func MatchValue(key string, value interface{}) Condition {
	return Condition{Key: key, MatchValue: value}
}

func MatchAny(key string, values ...interface{}) Condition {
	return Condition{Key: key, MatchAny: values}
}

func MatchExcept(key string, values ...interface{}) Condition {
	return Condition{Key: key, MatchExcept: values}
}

func InRange(key string, r Range) Condition {
	return Condition{Key: key, Range: &r}
}

func InDatetimeRange(key string, r Range) Condition {
	return Condition{Key: key, DatetimeRange: &r}
}

func CountGT(key string, n int) Condition {
	return Condition{Key: key, ValuesCount: &Range{GT: n}}
}

func Empty(key string) Condition {
	return Condition{Key: key, IsEmpty: true}
}

func Null(key string) Condition {
	return Condition{Key: key, IsNull: true}
}

func Nested(f *Filter) Condition {
	return Condition{Nested: f}
}

// StringsToAny widens a string slice for matchAny/matchExcept arguments.
func StringsToAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Int64sToAny widens an int64 slice for matchAny/matchExcept arguments.
func Int64sToAny(ns []int64) []interface{} {
	out := make([]interface{}, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}
