package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an insertion-ordered string-keyed map, standing in for the
// Python driver's OrderedDict error records: field order in the rendered
// JSON matters for readability (type/goal/location/message before
// details/extra) even though it has no bearing on equality.
type Record struct {
	keys []string
	vals map[string]interface{}
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]interface{})}
}

// Set inserts or overwrites key, preserving first-insertion position, and
// returns the receiver for chaining.
func (r *Record) Set(key string, val interface{}) *Record {
	if _, exists := r.vals[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = val
	return r
}

// Get returns the value stored at key, if any.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// MarshalJSON renders the record as a JSON object with keys in insertion
// order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(r.vals[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON rebuilds a Record from a JSON object, preserving the
// source's key order via token-by-token decoding rather than unmarshaling
// into a plain map (which Go would then re-serialize in sorted order).
// Nested objects decode to *Record, nested arrays to []interface{}.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	val, err := decodeOrderedValue(dec)
	if err != nil {
		return err
	}
	obj, ok := val.(*Record)
	if !ok {
		return fmt.Errorf("transcript: expected a JSON object, got %T", val)
	}
	*r = *obj
	return nil
}

func decodeOrderedValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeOrderedToken(dec, tok)
}

func decodeOrderedToken(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := NewRecord()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("transcript: expected string object key, got %v", keyTok)
				}
				val, err := decodeOrderedValue(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return rec, nil

		case '[':
			var arr []interface{}
			for dec.More() {
				val, err := decodeOrderedValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("transcript: unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}
