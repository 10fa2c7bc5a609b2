package models

import (
	"bytes"
	"encoding/json"
)

// NullableString is a patch field that distinguishes absent, null and a
// value. Set is true whenever the key appeared in the body.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

// SetString returns a NullableString holding v.
func SetString(v string) NullableString {
	return NullableString{Set: true, Valid: true, Value: v}
}

// Null returns a NullableString that clears the column.
func Null() NullableString {
	return NullableString{Set: true}
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid, n.Value = false, ""
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Ptr returns the value as the nullable column representation.
func (n NullableString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
