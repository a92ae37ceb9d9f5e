package pdf

import (
	"sort"
	"strings"
	"unicode"

	"agenthub/internal/session"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {},
	"which": {}, "who": {}, "whom": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"with": {}, "from": {}, "about": {}, "into": {}, "does": {}, "did": {}, "how": {},
	"why": {}, "when": {}, "where": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"has": {}, "have": {}, "had": {}, "you": {}, "your": {}, "its": {}, "their": {},
	"there": {}, "please": {}, "tell": {}, "give": {}, "document": {}, "pdf": {},
}

// terms returns the lower-cased words of s worth matching on.
func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Retrieve ranks chunks by how many query terms they contain and returns
// the best k in document order. When nothing matches the first k chunks are
// returned so the model still sees the start of the document.
func Retrieve(chunks []session.Chunk, query string, k int) []session.Chunk {
	if k <= 0 || len(chunks) == 0 {
		return nil
	}
	if len(chunks) <= k {
		return chunks
	}

	q := make(map[string]struct{})
	for _, t := range terms(query) {
		q[t] = struct{}{}
	}

	type scored struct {
		pos   int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i].pos = i
		seen := make(map[string]struct{})
		for _, t := range terms(c.Content) {
			if _, ok := q[t]; !ok {
				continue
			}
			// distinct terms dominate raw frequency
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				ranked[i].score += 100
			} else {
				ranked[i].score++
			}
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := ranked[:k]
	sort.Slice(top, func(i, j int) bool { return top[i].pos < top[j].pos })
	out := make([]session.Chunk, 0, k)
	for _, r := range top {
		out = append(out, chunks[r.pos])
	}
	return out
}
