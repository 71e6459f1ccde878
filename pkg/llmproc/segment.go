package llmproc

import "strings"

// sentenceBoundary is the set of characters that can terminate a
// spoken sentence, per spec.md §4.8.
const sentenceBoundary = ".?!\n"

// tagPrefixes are buffer suffixes that could still grow into a control
// tag; a flush must wait rather than cut one in half.
var tagPrefixes = []string{"[", "[END", "[TRAN", "[DT"}

// segmenter accumulates streamed text and yields complete sentences as
// soon as a boundary character appears, unless the buffer ends in a
// prefix that could still become a control tag.
type segmenter struct {
	buf strings.Builder
}

func newSegmenter() *segmenter {
	return &segmenter{}
}

// feed appends a chunk of streamed text and returns zero or more
// sentences ready to flush to TTS.
func (s *segmenter) feed(chunk string) []string {
	s.buf.WriteString(chunk)
	if !strings.ContainsAny(chunk, sentenceBoundary) {
		return nil
	}

	current := s.buf.String()
	if hasPendingTagPrefix(current) {
		return nil
	}

	idx := lastBoundaryIndex(current)
	if idx < 0 {
		return nil
	}

	ready := current[:idx+1]
	remainder := current[idx+1:]
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return []string{ready}
}

// flush returns and clears any remaining buffered text (end of stream
// or cancellation).
func (s *segmenter) flush() string {
	rest := s.buf.String()
	s.buf.Reset()
	return rest
}

func lastBoundaryIndex(s string) int {
	idx := -1
	for i, r := range s {
		if strings.ContainsRune(sentenceBoundary, r) {
			idx = i
		}
	}
	return idx
}

func hasPendingTagPrefix(s string) bool {
	trimmed := strings.TrimRight(s, " ")
	for _, prefix := range tagPrefixes {
		if strings.HasSuffix(trimmed, prefix) {
			return true
		}
	}
	return false
}
