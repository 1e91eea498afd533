package sniff

import (
	"bytes"

	"github.com/akernet/logbuddy/pkg/types"
)

// Signature is a magic-byte rule checked before the MIME database.
type Signature struct {
	Name   string
	MIME   string
	Kind   types.Kind
	Format types.Format
	Offset int
	Magic  []byte
}

// Match reports whether prefix carries the signature.
func (s Signature) Match(prefix []byte) bool {
	end := s.Offset + len(s.Magic)
	if len(s.Magic) == 0 || len(prefix) < end {
		return false
	}
	return bytes.Equal(prefix[s.Offset:end], s.Magic)
}

// defaultSignatures covers containers the MIME database does not detect.
var defaultSignatures = []Signature{
	// LZ4 frame format
	{
		Name:   "lz4",
		MIME:   "application/x-lz4",
		Kind:   types.KindArchive,
		Format: types.FormatLz4,
		Magic:  []byte{0x04, 0x22, 0x4D, 0x18},
	},
	// ZIP with no entries: only the end of central directory record
	{
		Name:   "zip-empty",
		MIME:   "application/zip",
		Kind:   types.KindArchive,
		Format: types.FormatZip,
		Magic:  []byte{0x50, 0x4B, 0x05, 0x06},
	},
}

// archiveMIME maps MIME database types to unpack formats. Only the exact
// type counts: zip-based documents (docx, jar, epub) are leaves.
var archiveMIME = []struct {
	mime   string
	format types.Format
}{
	{"application/zip", types.FormatZip},
	{"application/x-tar", types.FormatTar},
	{"application/gzip", types.FormatGzip},
	{"application/x-bzip2", types.FormatBzip2},
	{"application/x-xz", types.FormatXz},
	{"application/zstd", types.FormatZstd},
	{"application/x-7z-compressed", types.Format7z},
}
