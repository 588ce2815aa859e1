package utils

import "unicode"

// SplitText splits a long string into chunks of at most chunkSize
// runes, overlapping by 'overlap' runes to preserve context across
// boundaries. Chunk ends are pulled back to the nearest whitespace
// when one is close, so words are rarely cut in half.
func SplitText(text string, chunkSize int, overlap int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	if overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		end = breakPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// breakPoint walks back from end looking for whitespace, but no
// further than a tenth of the chunk, so a space-free run of text
// still gets split.
func breakPoint(runes []rune, start, end int) int {
	limit := end - (end-start)/10
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
