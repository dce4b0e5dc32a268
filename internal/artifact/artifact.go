// Package artifact defines where preview artifacts live and how a source
// object records that its previews exist.
//
// Every generator run writes into its own namespace:
//
//	previews/<uuid>.asp-preview/preview.png
//	previews/<uuid>.asp-preview/preview.mp4          (video only)
//	previews/<uuid>.asp-preview/preview-path.txt     (body: original key)
//	previews/<uuid>.asp-preview/<original key>.asp-location
//	previews/<uuid>.asp-preview/error.json           (failed runs)
//
// The source object is then tagged previews=true and
// previews-location=<namespace>.
package artifact

import (
	"path"
	"strings"

	"github.com/fpang/object-previews/internal/objstore"
)

const (
	// Prefix is the reserved top-level prefix for all artifacts.
	Prefix = "previews/"
	// Marker appears in every namespace directory name.
	Marker = ".asp-preview"
	// LocationSuffix is appended to the original key for the forward lookup object.
	LocationSuffix = ".asp-location"

	ThumbnailName = "preview.png"
	ClipName      = "preview.mp4"
	PathName      = "preview-path.txt"
	ErrorName     = "error.json"

	// TagHasPreview is the completion flag.
	TagHasPreview = "previews"
	// TagLocation points at the artifact namespace.
	TagLocation = "previews-location"
)

const namespaceSeparator = "asp-preview/"

// Namespace is a per-run artifact directory, always ending in "/".
type Namespace string

// NewNamespace returns the namespace for a run id.
func NewNamespace(id string) Namespace {
	return Namespace(Prefix + id + Marker + "/")
}

// String returns the namespace prefix.
func (n Namespace) String() string { return string(n) }

// Key joins name onto the namespace.
func (n Namespace) Key(name string) string { return string(n) + name }

// Thumbnail is the canonical thumbnail key.
func (n Namespace) Thumbnail() string { return n.Key(ThumbnailName) }

// Clip is the video clip key.
func (n Namespace) Clip() string { return n.Key(ClipName) }

// PathRecord is the reverse lookup key.
func (n Namespace) PathRecord() string { return n.Key(PathName) }

// ErrorRecord is the failure diagnostic key.
func (n Namespace) ErrorRecord() string { return n.Key(ErrorName) }

// Location is the forward lookup key for originalKey.
func (n Namespace) Location(originalKey string) string {
	return n.Key(originalKey + LocationSuffix)
}

// IsReserved reports whether key belongs to the artifact namespace and must
// never be treated as a source object.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, Prefix) || strings.Contains(key, Marker)
}

var fixedNames = map[string]bool{
	ThumbnailName: true,
	ClipName:      true,
	PathName:      true,
	ErrorName:     true,
}

// OriginalKey derives the source key from a deleted artifact key by taking
// everything after "asp-preview/" and dropping the final extension.
// It returns false for keys outside a namespace and for the fixed artifact
// file names, which carry no source key.
func OriginalKey(artifactKey string) (string, bool) {
	idx := strings.Index(artifactKey, namespaceSeparator)
	if idx < 0 {
		return "", false
	}
	rest := artifactKey[idx+len(namespaceSeparator):]
	if rest == "" || fixedNames[rest] {
		return "", false
	}
	original := strings.TrimSuffix(rest, path.Ext(rest))
	if original == "" {
		return "", false
	}
	return original, true
}

// IsComplete reports whether tags carry the completion flag.
func IsComplete(tags objstore.Tags) bool {
	v, ok := tags.Get(TagHasPreview)
	return ok && v == "true"
}

// MarkComplete adds the completion tags, replacing any previous values and
// preserving unrelated tags.
func MarkComplete(tags objstore.Tags, ns Namespace) objstore.Tags {
	return tags.Set(TagHasPreview, "true").Set(TagLocation, ns.String())
}

// ClearCompletion removes the completion tags and reports whether any were present.
func ClearCompletion(tags objstore.Tags) (objstore.Tags, bool) {
	out := tags.Without(TagHasPreview, TagLocation)
	return out, len(out) != len(tags)
}
