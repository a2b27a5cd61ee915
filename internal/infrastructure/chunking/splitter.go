// Package chunking splits page text into retrieval-sized chunks while
// preserving the original token stream: the chunks of a page, joined with
// single spaces, reproduce the whitespace-normalized page text.
package chunking

import "strings"

const (
	defaultTargetSize = 500

	// Structured sections (value lists, investor rosters, pricing grids)
	// lose meaning when cut, so they stay intact up to this multiple of
	// the target size.
	structuredSizeFactor = 1.5
)

var sectionMarkers = []string{
	"values", "investors", "leadership", "pricing", "features", "sales",
}

// SectionSplitter chunks text on paragraph boundaries, packing paragraphs
// up to TargetSize runes and falling back to sentence boundaries for
// oversized prose.
type SectionSplitter struct {
	TargetSize int
}

func NewSectionSplitter(targetSize int) *SectionSplitter {
	if targetSize <= 0 {
		targetSize = defaultTargetSize
	}
	return &SectionSplitter{TargetSize: targetSize}
}

// Split returns the chunks of text. sourceHint (typically the page URL)
// biases structured-section detection.
func (s *SectionSplitter) Split(text, sourceHint string) []string {
	target := s.TargetSize
	if target <= 0 {
		target = defaultTargetSize
	}
	structuredLimit := int(float64(target) * structuredSizeFactor)
	hintStructured := hintSuggestsStructure(sourceHint)

	var chunks []string
	var packed []string
	packedLen := 0

	flush := func() {
		if len(packed) > 0 {
			chunks = append(chunks, strings.Join(packed, " "))
			packed = packed[:0]
			packedLen = 0
		}
	}

	for _, paragraph := range splitParagraphs(text) {
		size := len([]rune(paragraph))

		if size > target {
			flush()
			if size <= structuredLimit && (hintStructured || looksStructured(paragraph)) {
				chunks = append(chunks, paragraph)
				continue
			}
			chunks = append(chunks, packSentences(paragraph, target)...)
			continue
		}

		// +1 for the joining space.
		if packedLen > 0 && packedLen+1+size > target {
			flush()
		}
		packed = append(packed, paragraph)
		if packedLen > 0 {
			packedLen++
		}
		packedLen += size
	}
	flush()
	return chunks
}

// splitParagraphs cuts raw text on blank lines and normalizes each
// paragraph's internal whitespace to single spaces.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		for _, sub := range splitOnBlankLines(block) {
			fields := strings.Fields(sub)
			if len(fields) > 0 {
				paragraphs = append(paragraphs, strings.Join(fields, " "))
			}
		}
	}
	return paragraphs
}

// splitOnBlankLines handles blank lines that carry stray whitespace and so
// survive the plain "\n\n" cut.
func splitOnBlankLines(block string) []string {
	lines := strings.Split(block, "\n")
	var parts []string
	var current []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				parts = append(parts, strings.Join(current, "\n"))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}

// packSentences splits an oversized paragraph at sentence boundaries and
// packs the sentences back up to target runes. A single sentence longer
// than the target becomes its own chunk rather than being cut mid-word.
func packSentences(paragraph string, target int) []string {
	sentences := splitSentences(paragraph)

	var chunks []string
	var packed []string
	packedLen := 0
	for _, sentence := range sentences {
		size := len([]rune(sentence))
		if packedLen > 0 && packedLen+1+size > target {
			chunks = append(chunks, strings.Join(packed, " "))
			packed = packed[:0]
			packedLen = 0
		}
		packed = append(packed, sentence)
		if packedLen > 0 {
			packedLen++
		}
		packedLen += size
	}
	if len(packed) > 0 {
		chunks = append(chunks, strings.Join(packed, " "))
	}
	return chunks
}

// splitSentences cuts normalized text after terminal punctuation followed
// by a space. The terminator stays with its sentence and the separating
// space is restored when chunks are rejoined.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if isTerminator(runes[i]) && runes[i+1] == ' ' {
			sentences = append(sentences, string(runes[start:i+1]))
			start = i + 2
			i++
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// looksStructured reports whether a paragraph opens like a known section
// (values, investors, leadership, pricing, features, sales).
func looksStructured(paragraph string) bool {
	head := strings.ToLower(paragraph)
	if len(head) > 80 {
		head = head[:80]
	}
	for _, marker := range sectionMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

func hintSuggestsStructure(sourceHint string) bool {
	hint := strings.ToLower(sourceHint)
	for _, marker := range sectionMarkers {
		if strings.Contains(hint, marker) {
			return true
		}
	}
	return false
}
