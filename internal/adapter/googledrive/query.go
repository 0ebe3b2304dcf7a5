package googledrive

import (
	"fmt"
	"strings"
)

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeQuery quotes user input for use inside a single-quoted Drive query
// literal.
func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// BuildListQuery returns the Drive search expression for a folder listing.
// Clauses appear in a fixed order: parent, name, trashed.
func BuildListQuery(folderID, query string) string {
	clauses := make([]string, 0, 3)
	if folderID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeQuery(folderID)))
	}
	if query != "" {
		clauses = append(clauses, fmt.Sprintf("name contains '%s'", escapeQuery(query)))
	}
	clauses = append(clauses, "trashed = false")
	return strings.Join(clauses, " and ")
}
