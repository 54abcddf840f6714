package chunker

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the per-chunk character budget.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap disables the overlap pass.
	DefaultChunkOverlap = 0

	contextMarker = "[Context:"
)

// codeBlockPattern captures fenced code spans so paragraph splitting never
// cuts through them.
var codeBlockPattern = regexp.MustCompile("(?s)```.*?```")

// PathEntry is one step of a heading ancestor chain, shallowest first.
type PathEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Metadata describes a chunk's position and outline context. Heading fields
// are present only for chunks that carry (or inherited) a heading.
type Metadata struct {
	Format           string `json:"format"`
	SourceFile       string `json:"source_file"`
	ChunkID          int    `json:"chunk_id"`
	InheritedHeading bool   `json:"inherited_heading"`
	Heading          string `json:"heading,omitempty"`
	HeadingLevel     int    `json:"heading_level,omitempty"`
	Breadcrumb       string `json:"breadcrumb,omitempty"`
	ParentHeader     string `json:"parent_header,omitempty"`
}

// Chunk is one output fragment with its heading info and metadata.
type Chunk struct {
	Content     string      `json:"content"`
	HeadingInfo HeadingInfo `json:"heading_info"`
	Metadata    Metadata    `json:"metadata"`
}

// fragment is an intermediate chunk produced by the splitting passes.
// hasInfo records whether heading info was captured during splitting so the
// metadata pass can avoid recomputing it.
type fragment struct {
	content string
	info    HeadingInfo
	hasInfo bool
}

// StructuredChunker splits a document along its heading hierarchy while
// respecting a character budget. Configuration is read-only after
// construction; each call owns its intermediate buffers, so a single
// instance is safe to share across goroutines chunking different documents.
type StructuredChunker struct {
	chunkSize    int
	chunkOverlap int
}

// New returns a chunker with the given character budget and overlap line
// count. Non-positive size falls back to DefaultChunkSize; negative overlap
// is clamped to zero.
func New(chunkSize, chunkOverlap int) *StructuredChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &StructuredChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// ChunkByHeadings splits text into ordered chunks. When headings is empty
// the whole text is split on paragraph boundaries instead. Short fragments
// are merged, overlap is injected when configured, and every chunk is
// annotated with heading metadata; chunks without a heading of their own
// inherit the nearest preceding heading path as a breadcrumb context line.
//
// The operation never fails: malformed input degrades to paragraph
// splitting and empty input yields an empty slice.
func (c *StructuredChunker) ChunkByHeadings(text string, headings []Heading, fileName, filePath string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var frags []fragment
	if len(headings) == 0 {
		frags = c.splitByParagraph(text)
	} else {
		frags = c.splitByHeadings(text, headings)
	}

	frags = c.mergeShortFragments(frags)

	if c.chunkOverlap > 0 && len(frags) > 1 {
		frags = c.applyOverlap(frags)
	}

	return c.annotate(frags, headings, fileName, filePath)
}

// annotate runs the breadcrumb/metadata pass over merged fragments.
func (c *StructuredChunker) annotate(frags []fragment, headings []Heading, fileName, filePath string) []Chunk {
	chunks := make([]Chunk, 0, len(frags))
	var previousPath []PathEntry

	for i, frag := range frags {
		content := frag.content
		info := frag.info
		if !frag.hasInfo {
			info = ExtractHeadingFromChunk(content)
		}

		currentPath := buildHeadingPath(info, headings)

		// A fragment with no heading of its own is attributed the nearest
		// preceding heading and gets a breadcrumb context line prepended.
		inherited := !info.HasHeading && previousPath != nil
		if inherited {
			last := previousPath[len(previousPath)-1]
			info = HeadingInfo{HasHeading: true, Heading: last.Title, Level: last.Level}
			if !strings.HasPrefix(strings.TrimSpace(content), contextMarker) {
				breadcrumb := joinTitles(previousPath, " > ")
				content = fmt.Sprintf("[Context: %s > %s]\n\n%s", fileName, breadcrumb, content)
			}
		}

		md := Metadata{
			Format:           fileFormat(filePath),
			SourceFile:       filePath,
			ChunkID:          i,
			InheritedHeading: inherited,
		}
		if info.HasHeading {
			md.Heading = info.Heading
			md.HeadingLevel = info.Level
			if len(currentPath) > 0 {
				md.Breadcrumb = joinTitles(currentPath, " > ")
				md.ParentHeader = joinTitles(currentPath, " | ")
			}
		}

		chunks = append(chunks, Chunk{Content: content, HeadingInfo: info, Metadata: md})

		if info.HasHeading && len(currentPath) > 0 {
			previousPath = currentPath
		}
	}
	return chunks
}

// splitByHeadings walks headings in document order. Each heading owns the
// lines up to the next heading of equal or shallower level. Sections that
// fit the budget accumulate into a running buffer; an oversized section is
// re-split on paragraph boundaries and bypasses the buffer entirely.
func (c *StructuredChunker) splitByHeadings(text string, headings []Heading) []fragment {
	lines := strings.Split(text, "\n")
	var frags []fragment
	var buf []string
	bufSize := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.Join(buf, "\n\n")
		frags = append(frags, fragment{
			content: content,
			info:    ExtractHeadingFromChunk(content),
			hasInfo: true,
		})
		buf, bufSize = nil, 0
	}

	for i, h := range headings {
		end := len(lines)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].Level <= h.Level {
				end = headings[j].Line
				break
			}
		}
		section := strings.TrimSpace(strings.Join(lines[h.Line:end], "\n"))
		size := utf8.RuneCountInString(section)

		switch {
		case size <= c.chunkSize && bufSize+size <= c.chunkSize:
			buf = append(buf, section)
			bufSize += size
		case size <= c.chunkSize:
			flush()
			buf = []string{section}
			bufSize = size
		default:
			// Oversized sections are never merged with neighbors, only
			// re-split internally.
			flush()
			frags = append(frags, c.splitByParagraph(section)...)
		}
	}
	flush()

	return frags
}

// splitByParagraph splits text on blank-line boundaries, protecting fenced
// code blocks first so a block spanning paragraphs stays atomic. A single
// paragraph larger than the budget is emitted whole.
func (c *StructuredChunker) splitByParagraph(text string) []fragment {
	protected, blocks := protectCodeBlocks(text)

	var frags []fragment
	var buf []string
	bufSize := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.Join(buf, "\n\n")
		frags = append(frags, fragment{
			content: content,
			info:    ExtractHeadingFromChunk(content),
			hasInfo: true,
		})
	}

	for _, para := range strings.Split(protected, "\n\n") {
		restored := restoreCodeBlocks(para, blocks)
		size := utf8.RuneCountInString(restored)

		if bufSize+size > c.chunkSize && len(buf) > 0 {
			flush()
			buf = []string{restored}
			bufSize = size
		} else {
			buf = append(buf, restored)
			bufSize += size
		}
	}
	flush()

	return frags
}

// mergeShortFragments greedily merges adjacent fragments while the combined
// size stays within the budget. The merged fragment keeps the heading info
// of its first constituent.
func (c *StructuredChunker) mergeShortFragments(frags []fragment) []fragment {
	if len(frags) == 0 {
		return nil
	}

	var merged []fragment
	current := frags[0]
	for _, next := range frags[1:] {
		if utf8.RuneCountInString(current.content)+utf8.RuneCountInString(next.content) <= c.chunkSize {
			current.content = current.content + "\n\n" + next.content
		} else {
			merged = append(merged, current)
			current = next
		}
	}
	return append(merged, current)
}

// applyOverlap prepends the tail of the previous fragment and appends the
// head of the next one, bounded by the configured line count. Overlap is
// measured in lines while the chunk budget is measured in characters, so
// this pass can push a fragment past the budget; continuity across chunk
// boundaries is preferred over strict sizing here.
func (c *StructuredChunker) applyOverlap(frags []fragment) []fragment {
	out := make([]fragment, len(frags))
	for i, frag := range frags {
		content := frag.content
		if i > 0 {
			content = lastLines(frags[i-1].content, c.chunkOverlap) + "\n\n" + content
		}
		if i < len(frags)-1 {
			content = content + "\n\n" + firstLines(frags[i+1].content, c.chunkOverlap)
		}
		out[i] = fragment{content: content, info: frag.info, hasInfo: frag.hasInfo}
	}
	return out
}

// protectCodeBlocks replaces each fenced code span with a placeholder token
// and returns the substituted text plus the reverse mapping.
func protectCodeBlocks(text string) (string, map[string]string) {
	blocks := make(map[string]string)
	protected := text
	for i, match := range codeBlockPattern.FindAllString(text, -1) {
		placeholder := fmt.Sprintf("__CODE_BLOCK_%d__", i)
		blocks[placeholder] = match
		protected = strings.Replace(protected, match, placeholder, 1)
	}
	return protected, blocks
}

// restoreCodeBlocks reverses protectCodeBlocks for one fragment.
func restoreCodeBlocks(text string, blocks map[string]string) string {
	restored := text
	for placeholder, block := range blocks {
		restored = strings.ReplaceAll(restored, placeholder, block)
	}
	return restored
}

// buildHeadingPath locates the first document heading matching info's
// (level, title) and returns its ancestor chain, shallowest first, ending
// with the heading itself. The chain follows standard outline semantics: a
// stack walked in document order where an incoming heading pops every entry
// of equal or deeper level before pushing itself.
//
// A document with two identically titled headings at the same level
// resolves both to the first occurrence's path.
func buildHeadingPath(info HeadingInfo, headings []Heading) []PathEntry {
	if !info.HasHeading {
		return nil
	}

	var stack []PathEntry
	for _, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, PathEntry{Level: h.Level, Title: h.Title})
		if h.Level == info.Level && h.Title == info.Heading {
			path := make([]PathEntry, len(stack))
			copy(path, stack)
			return path
		}
	}

	// Heading not present in the document list (e.g. synthesized during a
	// merge); fall back to a single-entry path.
	return []PathEntry{{Level: info.Level, Title: info.Heading}}
}

func joinTitles(path []PathEntry, sep string) string {
	titles := make([]string, len(path))
	for i, p := range path {
		titles[i] = p.Title
	}
	return strings.Join(titles, sep)
}

// fileFormat derives the metadata format from the file extension,
// lowercased and without the dot; files without an extension are "txt".
func fileFormat(filePath string) string {
	ext := filepath.Ext(filePath)
	if ext == "" {
		return "txt"
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func lastLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func firstLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
