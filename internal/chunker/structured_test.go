package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkByHeadingsSingleChunk(t *testing.T) {
	text := "# Title\n\nPara1\n\n## Sub\n\nPara2"
	headings := ParseHeadings(text)

	c := New(1000, 0)
	chunks := c.ChunkByHeadings(text, headings, "doc.md", "docs/doc.md")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	md := chunks[0].Metadata
	if md.Heading != "Title" {
		t.Errorf("expected heading %q, got %q", "Title", md.Heading)
	}
	if md.Breadcrumb != "Title" {
		t.Errorf("expected breadcrumb %q, got %q", "Title", md.Breadcrumb)
	}
	if md.HeadingLevel != 1 {
		t.Errorf("expected heading level 1, got %d", md.HeadingLevel)
	}
	if md.ChunkID != 0 {
		t.Errorf("expected chunk_id 0, got %d", md.ChunkID)
	}
	if md.InheritedHeading {
		t.Error("first chunk should not inherit a heading")
	}
	if md.Format != "md" {
		t.Errorf("expected format md, got %q", md.Format)
	}
	if md.SourceFile != "docs/doc.md" {
		t.Errorf("expected source_file docs/doc.md, got %q", md.SourceFile)
	}
}

func TestChunkByHeadingsEmptyInput(t *testing.T) {
	c := New(1000, 0)
	for _, text := range []string{"", "   \n\n  "} {
		if chunks := c.ChunkByHeadings(text, nil, "f.txt", "f.txt"); len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestHeadingPathHierarchy(t *testing.T) {
	headings := []Heading{
		{Line: 0, Level: 1, Title: "A"},
		{Line: 5, Level: 2, Title: "B"},
		{Line: 10, Level: 1, Title: "C"},
	}

	pathB := buildHeadingPath(HeadingInfo{HasHeading: true, Heading: "B", Level: 2}, headings)
	if len(pathB) != 2 || pathB[0].Title != "A" || pathB[1].Title != "B" {
		t.Errorf("path for B: got %+v, want [A B]", pathB)
	}

	// A is not an ancestor of C; C starts a fresh level-1 section.
	pathC := buildHeadingPath(HeadingInfo{HasHeading: true, Heading: "C", Level: 1}, headings)
	if len(pathC) != 1 || pathC[0].Title != "C" {
		t.Errorf("path for C: got %+v, want [C]", pathC)
	}
}

func TestHeadingPathSkipsCoveredLevels(t *testing.T) {
	// D nests under C (nearest level-1), not under A.
	headings := []Heading{
		{Line: 0, Level: 1, Title: "A"},
		{Line: 3, Level: 1, Title: "C"},
		{Line: 6, Level: 2, Title: "D"},
	}
	path := buildHeadingPath(HeadingInfo{HasHeading: true, Heading: "D", Level: 2}, headings)
	if len(path) != 2 || path[0].Title != "C" || path[1].Title != "D" {
		t.Errorf("got %+v, want [C D]", path)
	}
}

func TestHeadingPathDuplicateTitleResolvesFirst(t *testing.T) {
	headings := []Heading{
		{Line: 0, Level: 1, Title: "A"},
		{Line: 2, Level: 2, Title: "Setup"},
		{Line: 8, Level: 1, Title: "B"},
		{Line: 10, Level: 2, Title: "Setup"},
	}
	// Both "Setup" headings resolve to the first occurrence's path.
	path := buildHeadingPath(HeadingInfo{HasHeading: true, Heading: "Setup", Level: 2}, headings)
	if len(path) != 2 || path[0].Title != "A" {
		t.Errorf("got %+v, want [A Setup]", path)
	}
}

func TestHeadingPathUnknownHeadingFallsBack(t *testing.T) {
	path := buildHeadingPath(HeadingInfo{HasHeading: true, Heading: "Orphan", Level: 3}, nil)
	if len(path) != 1 || path[0] != (PathEntry{Level: 3, Title: "Orphan"}) {
		t.Errorf("got %+v, want single-entry fallback", path)
	}
}

func TestCodeBlockProtectRestoreRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no fences", "plain text\n\nwith paragraphs"},
		{"single fence", "before\n\n```go\nfunc main() {}\n```\n\nafter"},
		{"fence spanning blank lines", "```\nfirst\n\nsecond\n\nthird\n```"},
		{"two fences", "```a```\nmiddle\n```b```"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			protected, blocks := protectCodeBlocks(tt.text)
			if strings.Contains(tt.text, "```") && strings.Contains(protected, "```") {
				t.Error("protected text still contains a fence")
			}
			if got := restoreCodeBlocks(protected, blocks); got != tt.text {
				t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, tt.text)
			}
		})
	}
}

func TestCodeBlockAtomicity(t *testing.T) {
	// A fenced block spanning a blank-line boundary must land in one chunk.
	code := "```\nline1\n\nline2\n\nline3\n```"
	text := "intro paragraph\n\n" + code + "\n\n" + strings.Repeat("tail ", 30)

	c := New(40, 0)
	chunks := c.ChunkByHeadings(text, nil, "f.txt", "f.txt")

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Content, code) {
			found = true
		}
	}
	if !found {
		t.Fatalf("code block was split across chunks: %+v", chunks)
	}
}

func TestParagraphFallbackOrderPreserved(t *testing.T) {
	paras := []string{
		"first paragraph with some words",
		"second paragraph with more words",
		"third paragraph closing out",
	}
	text := strings.Join(paras, "\n\n")

	c := New(35, 0)
	chunks := c.ChunkByHeadings(text, nil, "f.txt", "f.txt")

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var contents []string
	for i, ch := range chunks {
		if ch.Metadata.ChunkID != i {
			t.Errorf("chunk %d has chunk_id %d", i, ch.Metadata.ChunkID)
		}
		contents = append(contents, ch.Content)
	}
	if got := strings.Join(contents, "\n\n"); got != text {
		t.Errorf("concatenated chunks do not reconstruct input:\ngot  %q\nwant %q", got, text)
	}
}

func TestOversizedParagraphEmittedWhole(t *testing.T) {
	big := strings.Repeat("x", 500)
	c := New(100, 0)
	chunks := c.ChunkByHeadings(big, nil, "f.txt", "f.txt")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != big {
		t.Error("oversized paragraph should be emitted unmodified")
	}
}

func TestMergeRespectsBudget(t *testing.T) {
	frags := []fragment{
		{content: strings.Repeat("a", 30)},
		{content: strings.Repeat("b", 30)},
		{content: strings.Repeat("c", 80)},
		{content: strings.Repeat("d", 10)},
	}
	c := New(100, 0)
	merged := c.mergeShortFragments(frags)

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged fragments, got %d", len(merged))
	}
	// a+b merge (60 <= 100), c cannot join; c+d merge (90 <= 100).
	for i, m := range merged {
		if n := utf8.RuneCountInString(m.content); n > 100+2 {
			t.Errorf("merged fragment %d exceeds budget: %d runes", i, n)
		}
	}
	if !strings.Contains(merged[0].content, "aaa") || !strings.Contains(merged[0].content, "bbb") {
		t.Error("first two fragments should have merged")
	}
}

func TestInheritedHeadingPropagation(t *testing.T) {
	text := "# Intro\n\n" + strings.Repeat("alpha ", 20)
	headings := ParseHeadings(text)

	c := New(60, 0)
	chunks := c.ChunkByHeadings(text, headings, "guide.md", "docs/guide.md")

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	first := chunks[0]
	if first.Metadata.Heading != "Intro" || first.Metadata.InheritedHeading {
		t.Errorf("first chunk: got %+v", first.Metadata)
	}

	second := chunks[1]
	if !second.Metadata.InheritedHeading {
		t.Error("second chunk should inherit the heading")
	}
	if second.Metadata.Heading != "Intro" {
		t.Errorf("second chunk heading: got %q, want Intro", second.Metadata.Heading)
	}
	if !strings.HasPrefix(second.Content, "[Context: guide.md > Intro]") {
		t.Errorf("second chunk missing context prefix: %q", second.Content)
	}
	if !second.HeadingInfo.HasHeading {
		t.Error("inherited chunks synthesize heading info")
	}
}

func TestContextPrefixNotDuplicated(t *testing.T) {
	frags := []fragment{
		{content: "# Intro\n\nbody", info: HeadingInfo{HasHeading: true, Heading: "Intro", Level: 1}, hasInfo: true},
		{content: "[Context: old.md > Intro]\n\nmore body", hasInfo: true},
	}
	c := New(10, 0) // keep fragments separate through the merge pass
	headings := []Heading{{Line: 0, Level: 1, Title: "Intro"}}
	chunks := c.annotate(frags, headings, "guide.md", "guide.md")

	if strings.Count(chunks[1].Content, "[Context:") != 1 {
		t.Errorf("context marker duplicated: %q", chunks[1].Content)
	}
	if !chunks[1].Metadata.InheritedHeading {
		t.Error("existing context marker still counts as inherited")
	}
}

func TestOverlapPass(t *testing.T) {
	frags := []fragment{
		{content: "a1\na2\na3"},
		{content: "b1\nb2"},
		{content: "c1\nc2\nc3"},
	}
	c := New(1000, 2)
	out := c.applyOverlap(frags)

	if len(out) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(out))
	}
	if !strings.HasSuffix(out[0].content, "\n\nb1\nb2") {
		t.Errorf("first fragment missing next-head overlap: %q", out[0].content)
	}
	if !strings.HasPrefix(out[1].content, "a2\na3\n\n") {
		t.Errorf("middle fragment missing prev-tail overlap: %q", out[1].content)
	}
	if !strings.HasSuffix(out[1].content, "\n\nc1\nc2") {
		t.Errorf("middle fragment missing next-head overlap: %q", out[1].content)
	}
	// Overlap larger than a fragment's line count clamps to all lines.
	c = New(1000, 10)
	out = c.applyOverlap(frags[:2])
	if !strings.HasPrefix(out[1].content, "a1\na2\na3\n\n") {
		t.Errorf("overlap should clamp to all available lines: %q", out[1].content)
	}
}

func TestOverlapSkippedForSingleChunk(t *testing.T) {
	text := "# Only\n\nshort body"
	c := New(1000, 3)
	chunks := c.ChunkByHeadings(text, ParseHeadings(text), "f.md", "f.md")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("single chunk should be untouched by overlap: %q", chunks[0].Content)
	}
}

func TestOversizedSectionResplit(t *testing.T) {
	body := strings.Repeat("word ", 60) // ~300 runes
	text := "# Big\n\n" + body + "\n\n" + body + "\n\n# Next\n\nsmall"
	headings := ParseHeadings(text)

	c := New(200, 0)
	chunks := c.ChunkByHeadings(text, headings, "f.md", "f.md")

	if len(chunks) < 3 {
		t.Fatalf("expected oversized section to split, got %d chunks", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Metadata.Heading != "Next" {
		t.Errorf("last chunk heading: got %q, want Next", last.Metadata.Heading)
	}
}

func TestFileFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"docs/readme.MD", "md"},
		{"a/b/c.txt", "txt"},
		{"noextension", "txt"},
		{"archive.tar.gz", "gz"},
	}
	for _, tt := range tests {
		if got := fileFormat(tt.path); got != tt.want {
			t.Errorf("fileFormat(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(0, -5)
	if c.chunkSize != DefaultChunkSize {
		t.Errorf("expected default chunk size %d, got %d", DefaultChunkSize, c.chunkSize)
	}
	if c.chunkOverlap != 0 {
		t.Errorf("expected overlap clamped to 0, got %d", c.chunkOverlap)
	}
}
