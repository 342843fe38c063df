// Package sqlmigrate holds helpers shared by the PostgreSQL and SQLite
// migration runners.
package sqlmigrate

import "strings"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// ExtractUp returns the SQL in the -- +migrate Up section. Content without
// markers is returned whole.
func ExtractUp(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, downMarker)
	if downIdx == -1 {
		return content[upIdx+len(upMarker):]
	}
	return content[upIdx+len(upMarker) : downIdx]
}
