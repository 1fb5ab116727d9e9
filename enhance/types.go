package enhance

import (
	"encoding/json"
	"fmt"

	"github.com/wudi/screenkit/recognition"
)

// EnhancedResult tags one recognition result with application-aware
// semantics. A result may be tagged by multiple plugins; duplication is
// intentional redundancy for downstream consumers.
type EnhancedResult struct {
	Original       recognition.Result
	SemanticType   string
	StructuredData map[string]Value
	// Relationships lists ids of structured elements this result supports.
	Relationships []string
}

// StructuredElement is the canonical extracted-fact unit consumed by
// summarization and reporting. Immutable once created; IDs are globally
// unique.
type StructuredElement struct {
	ID       string
	Type     string
	Value    string
	Metadata map[string]Value
	Region   *recognition.Region
	// Confidence carries the recognition confidence of the supporting
	// result(s) so downstream aggregation never has to re-derive it.
	Confidence float64
}

// Kind discriminates the Value union.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindMap
)

// Value is an attribute-typed union for heterogeneous structured data.
// Consumers switch on Kind instead of type-asserting an untyped any.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    map[string]Value
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func MapValue(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload; ok is false for non-string kinds.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload; ok is false for non-number kinds.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload; ok is false for non-bool kinds.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Map returns the nested map payload; ok is false for non-map kinds.
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := valueFromInterface(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func valueFromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case bool:
		return BoolValue(t), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, nested := range t {
			nv, err := valueFromInterface(nested)
			if err != nil {
				return Value{}, err
			}
			m[k] = nv
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}
