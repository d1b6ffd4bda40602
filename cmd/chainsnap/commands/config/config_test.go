package config

import (
	"reflect"
	"testing"
)

func TestEditorCommand(t *testing.T) {
	tests := []struct {
		name   string
		visual string
		editor string
		want   []string
	}{
		{name: "fallback", want: []string{"vi"}},
		{name: "editor only", editor: "nano", want: []string{"nano"}},
		{name: "visual wins", visual: "code --wait", editor: "nano", want: []string{"code", "--wait"}},
		{name: "blank visual", visual: "  ", editor: "vim", want: []string{"vim"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VISUAL", tt.visual)
			t.Setenv("EDITOR", tt.editor)
			if got := editorCommand(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("editorCommand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildSchemaUsesYAMLNames(t *testing.T) {
	schema := buildSchema()
	if schema.Title != "chainsnap" {
		t.Errorf("Title = %q, want chainsnap", schema.Title)
	}
	for _, key := range []string{"state_dir", "publication", "targets", "schedule"} {
		if _, ok := schema.Properties.Get(key); !ok {
			t.Errorf("schema has no %q property", key)
		}
	}
}
