package archive

import (
	"encoding/json"
	"fmt"
)

// Format selects the archive container written before extraneous files are
// deleted.
type Format int

const (
	// TarGz writes a gzip-compressed tarball.
	TarGz Format = iota
	// TarZst writes a zstd-compressed tarball.
	TarZst
)

var formatToString = map[Format]string{
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat = map[string]Format{}

func init() {
	for format, s := range formatToString {
		stringToFormat[s] = format
	}
}

// String returns the string representation of a Format.
func (f Format) String() string {
	if s, ok := formatToString[f]; ok {
		return s
	}
	return fmt.Sprintf("unknown_archive_format(%d)", f)
}

// Extension returns the file suffix for the format, including the leading dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses a string and returns the corresponding Format. The empty
// string selects TarGz.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return TarGz, nil
	}
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return 0, fmt.Errorf("invalid archive format: %q. Must be 'tar.gz' or 'tar.zst'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
