package objstore

import (
	"reflect"
	"testing"
)

func TestMetadataPatch(t *testing.T) {
	tests := []struct {
		name    string
		current map[string]string
		tags    Tags
		want    map[string]string
	}{
		{
			name:    "add completion",
			current: map[string]string{"owner": "ops"},
			tags:    Tags{{Key: "owner", Value: "ops"}, {Key: "previews", Value: "true"}},
			want:    map[string]string{"previews": "true"},
		},
		{
			name:    "remove completion",
			current: map[string]string{"owner": "ops", "previews": "true", "previews-location": "previews/x.asp-preview/"},
			tags:    Tags{{Key: "owner", Value: "ops"}},
			want:    map[string]string{"previews": "", "previews-location": ""},
		},
		{
			name:    "no change",
			current: map[string]string{"owner": "ops"},
			tags:    Tags{{Key: "owner", Value: "ops"}},
			want:    map[string]string{},
		},
		{
			name:    "nil current",
			current: nil,
			tags:    Tags{{Key: "previews", Value: "true"}},
			want:    map[string]string{"previews": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metadataPatch(tt.current, tt.tags); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("metadataPatch = %v, want %v", got, tt.want)
			}
		})
	}
}
