package chunker

import (
	"regexp"
	"strings"
)

// headingPattern matches ATX-style markdown headings: 1-6 '#' characters,
// at least one space, then non-empty title text. A bare "####" line does
// not match.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Heading is a single ATX heading located by its line index in the document.
type Heading struct {
	Line  int    `json:"line"`
	Level int    `json:"level"`
	Title string `json:"title"`
}

// HeadingInfo describes whether a chunk opens with a heading.
type HeadingInfo struct {
	HasHeading bool   `json:"has_heading"`
	Heading    string `json:"heading"`
	Level      int    `json:"level"`
}

// headingScanLines bounds how deep into a chunk ExtractHeadingFromChunk
// looks. A heading buried further down does not make the chunk "headed".
const headingScanLines = 5

// ParseHeadings scans text line by line and returns every ATX heading in
// document order. Non-matching lines are skipped; there is no error path.
func ParseHeadings(text string) []Heading {
	var headings []Heading
	for i, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		m := headingPattern.FindStringSubmatch(stripped)
		if m == nil {
			continue
		}
		headings = append(headings, Heading{
			Line:  i,
			Level: len(m[1]),
			Title: strings.TrimSpace(m[2]),
		})
	}
	return headings
}

// ExtractHeadingFromChunk inspects the first few lines of a chunk and
// returns the first heading found there, if any.
func ExtractHeadingFromChunk(chunkText string) HeadingInfo {
	lines := strings.Split(chunkText, "\n")
	if len(lines) > headingScanLines {
		lines = lines[:headingScanLines]
	}
	for _, line := range lines {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil {
			return HeadingInfo{
				HasHeading: true,
				Heading:    strings.TrimSpace(m[2]),
				Level:      len(m[1]),
			}
		}
	}
	return HeadingInfo{}
}
