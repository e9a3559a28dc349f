package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Meta is a free-form key/value annotation column, stored as JSON.
// Stock movements use it to cross-link paired transfer and reversal rows.
type Meta map[string]interface{}

func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Meta) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported type for Meta")
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

// GetInt reads an integer meta value regardless of whether it round-tripped
// through JSON (float64) or was set in-process (int).
func (m Meta) GetInt(key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
