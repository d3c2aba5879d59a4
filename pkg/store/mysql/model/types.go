package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// scanJSON decodes a JSON column delivered as bytes or text
func scanJSON(value interface{}, dest interface{}) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column value %T", value)
	}
	return json.Unmarshal(data, dest)
}

// JSONMap is a JSON object column
type JSONMap map[string]interface{}

// Scan implements sql.Scanner
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	m := make(map[string]interface{})
	if err := scanJSON(value, &m); err != nil {
		return fmt.Errorf("failed to scan JSONMap: %w", err)
	}
	*j = m
	return nil
}

// Value implements driver.Valuer
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONStringArray is a JSON array-of-strings column, e.g. the periods of a run
type JSONStringArray []string

// Scan implements sql.Scanner
func (j *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	a := make([]string, 0)
	if err := scanJSON(value, &a); err != nil {
		return fmt.Errorf("failed to scan JSONStringArray: %w", err)
	}
	*j = a
	return nil
}

// Value implements driver.Valuer
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// FloatMapToJSONMap converts map[string]float64 to JSONMap. Non-finite values
// are stored as null.
func FloatMapToJSONMap(m map[string]float64) JSONMap {
	if m == nil {
		return nil
	}
	result := make(JSONMap, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			result[k] = nil
			continue
		}
		result[k] = v
	}
	return result
}
