package objstore

import "sort"

// Tag is a single key/value label on an object.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered tag set. Methods never mutate the receiver.
type Tags []Tag

// Get returns the value of the first tag named key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Set returns a copy with every tag named key dropped and key=value appended.
func (t Tags) Set(key, value string) Tags {
	return append(t.Without(key), Tag{Key: key, Value: value})
}

// Without returns a copy with all tags matching any of keys removed.
func (t Tags) Without(keys ...string) Tags {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(Tags, 0, len(t))
	for _, tag := range t {
		if !drop[tag.Key] {
			out = append(out, tag)
		}
	}
	return out
}

// Map converts the set to a map. Later duplicates win.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, len(t))
	for _, tag := range t {
		m[tag.Key] = tag.Value
	}
	return m
}

// TagsFromMap builds a Tags value sorted by key.
func TagsFromMap(m map[string]string) Tags {
	out := make(Tags, 0, len(m))
	for k, v := range m {
		out = append(out, Tag{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
