package pdf

import "strings"

// Split cuts text into chunks of at most size bytes on word boundaries.
// Consecutive chunks share up to overlap bytes of trailing words. A single
// word longer than size becomes its own chunk.
func Split(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end, n := start, 0
		for end < len(words) {
			w := len(words[end])
			if end > start {
				w++
			}
			if end > start && n+w > size {
				break
			}
			n += w
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		next, o := end, 0
		for next > start+1 && o+len(words[next-1])+1 <= overlap {
			next--
			o += len(words[next]) + 1
		}
		start = next
	}
	return chunks
}
