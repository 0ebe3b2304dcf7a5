package googledrive

import (
	"fmt"
	"strings"
)

const (
	workspacePrefix = "application/vnd.google-apps."
	folderMimeType  = workspacePrefix + "folder"
)

// ExportFormat is the binary representation a Workspace document downloads as.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	"document":     {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
	"spreadsheet":  {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
	"presentation": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "pptx"},
	"drawing":      {"image/png", "png"},
	"script":       {"application/vnd.google-apps.script+json", "json"},
}

var urlSegments = map[string]string{
	"document":     "document",
	"spreadsheet":  "spreadsheets",
	"presentation": "presentation",
	"form":         "forms",
	"drawing":      "drawings",
	"site":         "sites",
	"jam":          "jamboard",
}

// WorkspaceType returns the Workspace type of mimeType ("document",
// "folder", ...) and whether mimeType is a Workspace type at all.
func WorkspaceType(mimeType string) (string, bool) {
	t, ok := strings.CutPrefix(mimeType, workspacePrefix)
	if !ok || t == "" {
		return "", false
	}
	return t, true
}

// IsWorkspace reports whether mimeType is a native Workspace type.
func IsWorkspace(mimeType string) bool {
	_, ok := WorkspaceType(mimeType)
	return ok
}

// ExportFormatFor returns the download format for a Workspace MIME type.
func ExportFormatFor(mimeType string) (ExportFormat, bool) {
	t, ok := WorkspaceType(mimeType)
	if !ok {
		return ExportFormat{}, false
	}
	f, ok := exportFormats[t]
	return f, ok
}

// WithExtension appends ".ext" to name unless it already ends with it.
func WithExtension(name, ext string) string {
	suffix := "." + ext
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
		return name
	}
	return name + suffix
}

// DocURLs are the browser links for a Workspace document.
type DocURLs struct {
	Edit string
	View string
}

// OpenURLs builds edit and view links for the Workspace document fileID.
// Types without an editor (folders, shortcuts, ...) report false.
func OpenURLs(mimeType, fileID string) (DocURLs, bool) {
	t, ok := WorkspaceType(mimeType)
	if !ok {
		return DocURLs{}, false
	}
	seg, ok := urlSegments[t]
	if !ok {
		return DocURLs{}, false
	}
	base := fmt.Sprintf("https://docs.google.com/%s/d/%s", seg, fileID)
	return DocURLs{Edit: base + "/edit", View: base + "/view"}, true
}
