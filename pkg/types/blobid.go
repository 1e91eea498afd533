package types

import (
	"crypto/sha1"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// BlobID is a Git-style SHA-1 content hash (20 bytes) identifying the
// content of a discovered leaf file.
type BlobID [20]byte

// ComputeBlobID computes Git-style blob ID: SHA-1("blob {len}\0{content}").
func ComputeBlobID(content []byte) BlobID {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)

	var id BlobID
	copy(id[:], h.Sum(nil))
	return id
}

// ComputeFileBlobID streams the file at path through the blob hash without
// loading it into memory. It returns the ID and the number of bytes hashed.
func ComputeFileBlobID(path string) (BlobID, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return BlobID{}, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return BlobID{}, 0, err
	}

	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", info.Size())
	n, err := io.Copy(h, f)
	if err != nil {
		return BlobID{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	if n != info.Size() {
		return BlobID{}, 0, fmt.Errorf("hashing %s: size changed during read (%d != %d)", path, n, info.Size())
	}

	var id BlobID
	copy(id[:], h.Sum(nil))
	return id, n, nil
}

// Hex returns 40-character hex string.
func (id BlobID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements Stringer (returns Hex()).
func (id BlobID) String() string {
	return id.Hex()
}

// IsZero reports whether the ID was never computed.
func (id BlobID) IsZero() bool {
	return id == BlobID{}
}

// ParseBlobID parses 40-char hex string to BlobID.
func ParseBlobID(hexStr string) (BlobID, error) {
	if len(hexStr) != 40 {
		return BlobID{}, fmt.Errorf("invalid blob ID length: expected 40, got %d", len(hexStr))
	}

	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return BlobID{}, fmt.Errorf("invalid hex string: %w", err)
	}

	var id BlobID
	copy(id[:], decoded)
	return id, nil
}

// MarshalJSON implements json.Marshaler.
func (id BlobID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *BlobID) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}

	parsed, err := ParseBlobID(hexStr)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (id BlobID) MarshalYAML() (interface{}, error) {
	return id.Hex(), nil
}

// Value implements driver.Valuer for SQL serialization.
func (id BlobID) Value() (driver.Value, error) {
	return id.Hex(), nil
}

// Scan implements sql.Scanner for SQL deserialization.
func (id *BlobID) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("cannot scan nil into BlobID")
	}

	var hexStr string
	switch v := value.(type) {
	case string:
		hexStr = v
	case []byte:
		hexStr = string(v)
	default:
		return fmt.Errorf("cannot scan type %T into BlobID", value)
	}

	parsed, err := ParseBlobID(hexStr)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}
