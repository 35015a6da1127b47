package fields

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FieldValue binds a validated value to its definition key, keeping the raw
// input for point-in-time reconstruction.
type FieldValue struct {
	Key  string    `json:"key"`
	Type FieldType `json:"type"`

	Raw   string      `json:"raw"`
	Value interface{} `json:"value"`
}

type FieldValues []FieldValue

func (vals FieldValues) Find(key string) (FieldValue, bool) {
	for _, v := range vals {
		if v.Key == key {
			return v, true
		}
	}
	return FieldValue{}, false
}

// Merge returns a copy with the given values replacing or appending to the
// receiver, keeping the original order for stable diffs.
func (vals FieldValues) Merge(updates FieldValues) FieldValues {
	merged := make(FieldValues, 0, len(vals)+len(updates))
	updated := map[string]bool{}
	for _, v := range vals {
		if u, found := updates.Find(v.Key); found {
			merged = append(merged, u)
			updated[v.Key] = true
		} else {
			merged = append(merged, v)
		}
	}
	for _, u := range updates {
		if !updated[u.Key] {
			merged = append(merged, u)
		}
	}
	return merged
}

func (t FieldValues) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *FieldValues) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}
