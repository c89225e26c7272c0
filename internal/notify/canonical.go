package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/storefront/internal/ledger"
)

// Encode renders ev as canonical JSON: object keys sorted by UTF-16 code
// units, strings NFC-normalized, no HTML escaping, no insignificant
// whitespace. Equal events always encode to identical bytes.
//
// The wire shape is {"action":..., "data":{...}, "model":...}.
func Encode(ev ledger.ChangeEvent) ([]byte, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return MarshalCanonical(map[string]any{
		"action": string(ev.Action),
		"model":  string(ev.Kind),
		"data":   payload,
	})
}

// Decode parses an event produced by Encode. Integers decode as int64.
func Decode(data []byte) (ledger.ChangeEvent, error) {
	var wire struct {
		Action  string         `json:"action"`
		Model   string         `json:"model"`
		Payload map[string]any `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return ledger.ChangeEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if wire.Action == "" || wire.Model == "" {
		return ledger.ChangeEvent{}, fmt.Errorf("decode event: missing action or model")
	}

	payload, err := fromJSON(wire.Payload)
	if err != nil {
		return ledger.ChangeEvent{}, fmt.Errorf("decode event data: %w", err)
	}
	obj, _ := payload.(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	return ledger.ChangeEvent{
		Action:  ledger.Action(wire.Action),
		Kind:    ledger.EntityKind(wire.Model),
		Payload: obj,
	}, nil
}

// MarshalCanonical encodes strings, integers, bools, []any and
// map[string]any. Floats and null are rejected so every value has exactly
// one encoding.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeString(buf, val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeString writes s NFC-normalized with HTML escaping disabled.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// json.Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// sortedKeys orders keys by UTF-16 code units.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})
	return keys
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// fromJSON converts decoder output (with UseNumber) to canonical Go values.
func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return n, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			c, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		if val == nil {
			return nil, nil
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			c, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	default:
		return val, nil
	}
}
