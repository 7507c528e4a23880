package fca

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Permission is one normalized register permission. Field order matters on
// the wire: consumers key off "Permission Name" first.
type Permission struct {
	Name    string          `json:"Permission Name"`
	Details json.RawMessage `json:"Details,omitempty"`
}

// PermissionList absorbs the register's permissions quirk: the endpoint
// returns either an array of permission rows or a keyed object mapping
// permission name to details. A keyed object is normalized into rows in the
// object's own key order; arrays pass through untouched.
type PermissionList []json.RawMessage

// UnmarshalJSON accepts both shapes. Anything else (null, absent, scalar)
// yields an empty list so consumers never branch on shape.
func (p *PermissionList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = PermissionList{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return err
		}
		if rows == nil {
			rows = []json.RawMessage{}
		}
		*p = rows
		return nil
	case '{':
		rows, err := normalizeKeyed(trimmed)
		if err != nil {
			return err
		}
		*p = rows
		return nil
	default:
		*p = PermissionList{}
		return nil
	}
}

// normalizeKeyed walks the object token by token; a plain map decode would
// lose the key order the register reports permissions in.
func normalizeKeyed(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}

	rows := []json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("permissions object: non-string key %v", tok)
		}
		var details json.RawMessage
		if err := dec.Decode(&details); err != nil {
			return nil, err
		}
		row, err := json.Marshal(Permission{Name: name, Details: details})
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
