// Package crypto exposes the cryptographic capabilities the ledger core
// consumes: canonical-JSON hashing, Ed25519 keypairs and signatures, and
// BIP-39 recovery phrase derivation.
package crypto

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CanonicalJSON serialises v the way every implementation of the protocol
// must: object keys in declaration order, finite numbers only, integers
// without a fractional part. Hashing and signing both operate exclusively
// on this byte form, so any divergence here breaks cross-implementation
// hash agreement.
//
// v must already be one of: nil, bool, string, float64/int-family number,
// []byte (encoded as a base64 JSON string, matching encoding/json), a
// slice of encodable values, map[string]any, or a struct understood by
// encoding/json via an OrderedFields implementation. Plain maps carry no
// declaration order, so their keys are emitted in sorted (alphabetical)
// order.
func CanonicalJSON(v any) ([]byte, error) {
	normalized, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// canonicalize walks v and rebuilds it using ordered field lists so that
// json.Marshal emits keys in a deterministic order, rejecting non-finite
// floats along the way.
func canonicalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, nil
	case json.RawMessage:
		return canonicalizeRaw(val)
	case float32:
		return canonicalizeFloat(float64(val))
	case float64:
		return canonicalizeFloat(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val, nil
	case []byte:
		return val, nil
	case OrderedFields:
		return canonicalizeOrdered(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			c, err := canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			ordered = append(ordered, orderedField{key: k, value: c})
		}
		return ordered, nil
	default:
		return nil, fmt.Errorf("crypto: canonical-json: unsupported type %T", v)
	}
}

func canonicalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("crypto: canonical-json: non-finite number %v", f)
	}
	return f, nil
}

func canonicalizeRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("crypto: canonical-json: decode raw payload: %w", err)
	}
	return canonicalizeDecoded(decoded)
}

// canonicalizeDecoded re-orders a value produced by json.Unmarshal into
// map[string]any (key order already lost) back into a deterministic,
// alphabetically-sorted field order. This is the best a generic decoder can
// do once key order has been erased; typed payloads should implement
// OrderedFields to preserve a declared (non-alphabetical) order instead.
func canonicalizeDecoded(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return canonicalize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := canonicalizeDecoded(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return canonicalize(val)
	}
}

// OrderedFields lets a type dictate the exact key emission order required
// by the protocol (§9: "serialise object keys in declaration order").
type OrderedFields interface {
	OrderedFields() []Field
}

// Field is one key/value pair of an OrderedFields payload.
type Field struct {
	Key   string
	Value any
}

type orderedField struct {
	key   string
	value any
}

type orderedMap []orderedField

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func canonicalizeOrdered(v OrderedFields) (any, error) {
	fields := v.OrderedFields()
	out := make(orderedMap, 0, len(fields))
	for _, f := range fields {
		c, err := canonicalize(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, orderedField{key: f.Key, value: c})
	}
	return out, nil
}
