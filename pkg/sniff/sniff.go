// Package sniff classifies files as archives or leaves from their leading
// bytes, never from their names.
package sniff

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/akernet/logbuddy/pkg/types"
)

// PrefixLen is the number of leading bytes inspected per file.
const PrefixLen = 1000

// rootMIME is what the MIME database reports when nothing matched.
const rootMIME = "application/octet-stream"

// Detection is the full result of sniffing a prefix.
type Detection struct {
	Kind   types.Kind   `json:"kind" yaml:"kind"`
	Format types.Format `json:"format,omitempty" yaml:"format,omitempty"`
	MIME   string       `json:"mime,omitempty" yaml:"mime,omitempty"`
}

type mimeRule struct {
	mime   string
	kind   types.Kind
	format types.Format
}

// Registry holds the signature table and MIME overrides. The zero value is
// not usable; use NewRegistry.
type Registry struct {
	mu         sync.RWMutex
	signatures []Signature
	mimes      []mimeRule
}

// NewRegistry returns a registry preloaded with the default container
// signatures.
func NewRegistry() *Registry {
	r := &Registry{
		signatures: append([]Signature(nil), defaultSignatures...),
	}
	for _, a := range archiveMIME {
		r.mimes = append(r.mimes, mimeRule{mime: a.mime, kind: types.KindArchive, format: a.format})
	}
	return r
}

// Register adds a magic-byte signature. Later registrations take priority.
func (r *Registry) Register(sig Signature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signatures = append([]Signature{sig}, r.signatures...)
}

// SetKind overrides the classification of a MIME type reported by the
// database. format must be set when kind is KindArchive.
func (r *Registry) SetKind(mime string, kind types.Kind, format types.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.mimes {
		if r.mimes[i].mime == mime {
			r.mimes[i].kind = kind
			r.mimes[i].format = format
			return
		}
	}
	r.mimes = append([]mimeRule{{mime: mime, kind: kind, format: format}}, r.mimes...)
}

// Detect classifies prefix. It never fails: no match is KindUnknown.
func (r *Registry) Detect(prefix []byte) Detection {
	if len(prefix) == 0 {
		return Detection{Kind: types.KindUnknown}
	}
	if len(prefix) > PrefixLen {
		prefix = prefix[:PrefixLen]
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sig := range r.signatures {
		if sig.Match(prefix) {
			return Detection{Kind: sig.Kind, Format: sig.Format, MIME: sig.MIME}
		}
	}

	m := mimetype.Detect(prefix)
	for _, rule := range r.mimes {
		if m.Is(rule.mime) {
			return Detection{Kind: rule.kind, Format: rule.format, MIME: rule.mime}
		}
	}
	if m.Is(rootMIME) {
		return Detection{Kind: types.KindUnknown, MIME: rootMIME}
	}
	return Detection{Kind: types.KindOther, MIME: m.String()}
}

// Classify returns only the kind of prefix.
func (r *Registry) Classify(prefix []byte) types.Kind {
	return r.Detect(prefix).Kind
}

// DetectFile reads up to PrefixLen bytes of path and classifies them. When
// the file cannot be read the detection is KindUnknown and the error is a
// *types.Error with OpSniff.
func (r *Registry) DetectFile(path string) (Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Detection{Kind: types.KindUnknown}, types.NewError(types.OpSniff, path, err)
	}
	defer f.Close()

	prefix, err := ReadPrefix(f)
	if err != nil {
		return Detection{Kind: types.KindUnknown}, types.NewError(types.OpSniff, path, err)
	}
	return r.Detect(prefix), nil
}

// ReadPrefix reads up to PrefixLen bytes. Short input is not an error.
func ReadPrefix(rd io.Reader) ([]byte, error) {
	buf := make([]byte, PrefixLen)
	n, err := io.ReadFull(rd, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Default is the registry used by the package-level helpers.
var Default = NewRegistry()

// Classify classifies prefix with the Default registry.
func Classify(prefix []byte) types.Kind {
	return Default.Classify(prefix)
}

// Detect runs Default.Detect.
func Detect(prefix []byte) Detection {
	return Default.Detect(prefix)
}

// DetectFile runs Default.DetectFile.
func DetectFile(path string) (Detection, error) {
	return Default.DetectFile(path)
}
