package config

import (
	"encoding/json"
	"fmt"
)

// CompareMode selects how the change detector decides whether a source file
// must be recopied.
type CompareMode int

const (
	// CompareMTimeSize copies when size differs or the mtime differs at whole-
	// second granularity. Default and cheapest; can miss a same-second change
	// that keeps the size identical.
	CompareMTimeSize CompareMode = iota
	// CompareSize copies when byte sizes differ.
	CompareSize
	// CompareHash copies when sizes differ, else when streamed SHA-256
	// digests differ.
	CompareHash
)

var compareModeToString = map[CompareMode]string{
	CompareMTimeSize: "mtime+size",
	CompareSize:      "size",
	CompareHash:      "hash",
}

var stringToCompareMode = map[string]CompareMode{}

func init() {
	for mode, s := range compareModeToString {
		stringToCompareMode[s] = mode
	}
}

// String returns the string representation of a CompareMode.
func (m CompareMode) String() string {
	if s, ok := compareModeToString[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown_compare_mode(%d)", m)
}

// ParseCompareMode parses a string and returns the corresponding CompareMode.
func ParseCompareMode(s string) (CompareMode, error) {
	if mode, ok := stringToCompareMode[s]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("invalid compareBy: %q. Must be 'mtime+size', 'size' or 'hash'", s)
}

// MarshalJSON implements the json.Marshaler interface for CompareMode.
func (m CompareMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CompareMode.
func (m *CompareMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("CompareMode should be a string, got %s", data)
	}
	mode, err := ParseCompareMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
