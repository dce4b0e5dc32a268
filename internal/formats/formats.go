// Package formats classifies object keys into preview kinds by extension.
//
// The extension lists come from configuration (see internal/config); Default
// carries the built-in tables used when no configuration overrides them.
package formats

import (
	"path"
	"sort"
	"strings"
)

// Kind is the preview category of a source object.
type Kind string

const (
	KindUnknown  Kind = ""
	KindVideo    Kind = "video"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Table maps lowercase extensions (with leading dot) to a Kind.
type Table struct {
	kinds map[string]Kind
}

// DefaultVideoExtensions are transcoded into a clip plus a frame thumbnail.
var DefaultVideoExtensions = []string{
	".mp4", ".mov", ".m4v", ".avi", ".webm", ".mkv",
	".mpeg", ".mpg", ".wmv", ".flv", ".3gp", ".ts",
}

// DefaultImageExtensions are thumbnailed.
var DefaultImageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif",
	".bmp", ".tif", ".tiff",
}

// DefaultDocumentExtensions get a first-page thumbnail.
var DefaultDocumentExtensions = []string{".pdf"}

// NewTable builds a Table from extension lists. Extensions are normalized to
// lowercase and a leading dot is added when missing. If an extension appears
// in more than one list, the first kind wins in video, image, document order.
func NewTable(video, image, document []string) *Table {
	t := &Table{kinds: make(map[string]Kind)}
	t.add(video, KindVideo)
	t.add(image, KindImage)
	t.add(document, KindDocument)
	return t
}

// Default returns the built-in table.
func Default() *Table {
	return NewTable(DefaultVideoExtensions, DefaultImageExtensions, DefaultDocumentExtensions)
}

func (t *Table) add(exts []string, kind Kind) {
	for _, ext := range exts {
		ext = normalize(ext)
		if ext == "" {
			continue
		}
		if _, ok := t.kinds[ext]; !ok {
			t.kinds[ext] = kind
		}
	}
}

func normalize(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Classify returns the Kind for an object key. Matching is case-insensitive
// and uses only the final extension of the key's base name.
func (t *Table) Classify(key string) Kind {
	return t.kinds[strings.ToLower(path.Ext(key))]
}

// Supported reports whether key has a previewable extension.
func (t *Table) Supported(key string) bool {
	return t.Classify(key) != KindUnknown
}

// Extensions returns the extensions registered for kind, sorted.
func (t *Table) Extensions(kind Kind) []string {
	var out []string
	for ext, k := range t.kinds {
		if k == kind {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}
