package objstore

import "testing"

func TestTagsSetReplacesDuplicates(t *testing.T) {
	tags := Tags{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "a", Value: "3"}}

	got := tags.Set("a", "9")
	if len(got) != 2 {
		t.Fatalf("expected 2 tags, got %v", got)
	}
	if got[0] != (Tag{Key: "b", Value: "2"}) || got[1] != (Tag{Key: "a", Value: "9"}) {
		t.Errorf("unexpected order or values: %v", got)
	}
	if v, _ := tags.Get("a"); v != "1" {
		t.Errorf("receiver mutated: %v", tags)
	}
}

func TestTagsWithout(t *testing.T) {
	tags := Tags{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	got := tags.Without("a", "c", "missing")
	if len(got) != 1 || got[0].Key != "b" {
		t.Errorf("Without = %v", got)
	}
}

func TestTagsFromMapSorted(t *testing.T) {
	got := TagsFromMap(map[string]string{"z": "1", "a": "2", "m": "3"})
	want := []string{"a", "m", "z"}
	for i, k := range want {
		if got[i].Key != k {
			t.Fatalf("TagsFromMap order = %v", got)
		}
	}
	if got.Map()["a"] != "2" {
		t.Errorf("Map lost value: %v", got.Map())
	}
}
