// Package export recognizes the trailing file-generation directive the
// model appends to a completed response. Artifact generation itself is the
// client's job; this package only parses the handoff.
package export

import (
	"regexp"
	"strings"
)

// Format enumerates the artifact formats the directive may request.
type Format string

const (
	FormatPDF  Format = "PDF"
	FormatDOCX Format = "DOCX"
	FormatPPTX Format = "PPTX"
	FormatTXT  Format = "TXT"
)

// Directive is the parsed handoff to the export collaborator.
type Directive struct {
	Format   Format `json:"format"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// directivePattern matches [[EXPORT:FORMAT:FILENAME]] anchored to the end
// of the text; a directive appearing mid-text is not recognized.
var directivePattern = regexp.MustCompile(`\[\[EXPORT:(PDF|DOCX|PPTX|TXT):([^\]\n]+)\]\]\s*$`)

// Extract detects a trailing directive, strips it from the text, and
// returns the directive together with the remaining content. Extraction is
// idempotent: re-scanning the stripped content yields nothing.
func Extract(text string) (Directive, bool) {
	loc := directivePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Directive{}, false
	}

	format := Format(text[loc[2]:loc[3]])
	filename := strings.TrimSpace(text[loc[4]:loc[5]])
	content := strings.TrimRight(text[:loc[0]], " \t\n")

	return Directive{
		Format:   format,
		Filename: filename,
		Content:  content,
	}, true
}
