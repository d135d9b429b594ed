package model

import "encoding/json"

// Optional distinguishes a field that was omitted from one that was sent,
// including one sent as an explicit JSON null.
//
// encoding/json only calls UnmarshalJSON for keys present in the input, so
// Set stays false for omitted keys:
//
//	{}                    → Set=false
//	{"description": null} → Set=true, Value=nil
//	{"description": "x"}  → Set=true, Value=&"x"
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}
