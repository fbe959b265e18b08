package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalDrainRecord serializes a DrainRecord to JSON bytes.
func MarshalDrainRecord(d *DrainRecord) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("cannot marshal nil DrainRecord")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DrainRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDrainRecord deserializes a DrainRecord from JSON bytes.
func UnmarshalDrainRecord(data []byte) (*DrainRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var d DrainRecord
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DrainRecord: %w", err)
	}

	return &d, nil
}

// FormatIndex renders a claim index as used in storage keys and sets
func FormatIndex(index uint64) string {
	return strconv.FormatUint(index, 10)
}

// ParseIndex is the inverse of FormatIndex
func ParseIndex(s string) (uint64, error) {
	index, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid claim index %q: %w", s, err)
	}
	return index, nil
}
