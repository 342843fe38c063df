package sqlmigrate

import (
	"strings"
	"testing"
)

func TestExtractUp(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "up and down",
			content: "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n",
			want:    "CREATE TABLE a (id TEXT);",
		},
		{
			name:    "up only",
			content: "-- +migrate Up\nCREATE TABLE b (id TEXT);\n",
			want:    "CREATE TABLE b (id TEXT);",
		},
		{
			name:    "no markers",
			content: "SELECT 1;",
			want:    "SELECT 1;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.TrimSpace(ExtractUp(tt.content)); got != tt.want {
				t.Fatalf("ExtractUp = %q, want %q", got, tt.want)
			}
		})
	}
}
