package types

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a file by its content signature.
type Kind int

const (
	// KindUnknown means no signature matched with confidence.
	KindUnknown Kind = iota
	// KindOther is a recognised non-container format.
	KindOther
	// KindArchive is a container whose content is one or more files.
	KindArchive
)

// String returns "unknown", "other" or "archive".
func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "unknown":
		return KindUnknown, nil
	case "other":
		return KindOther, nil
	case "archive":
		return KindArchive, nil
	default:
		return KindUnknown, fmt.Errorf("invalid kind %q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Format names a container format an unpacker understands.
// The zero value means the content is not a known container.
type Format string

const (
	FormatNone  Format = ""
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatGzip  Format = "gzip"
	FormatBzip2 Format = "bzip2"
	FormatXz    Format = "xz"
	FormatZstd  Format = "zstd"
	FormatLz4   Format = "lz4"
	Format7z    Format = "7z"
)
