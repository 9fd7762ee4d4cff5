package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// Span is a half-open range of rune offsets into the split text.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// separator yields the interior cut positions of runes[lo:hi]. Positions
// are absolute and strictly between lo and hi.
type separator func(runes []rune, lo, hi int) []int

// structureKeywords open a line that starts a new section of a contract or
// policy document.
var structureKeywords = []string{"section", "clause", "article", "chapter", "schedule", "annexure"}

// defaultSeparators is ordered from the coarsest boundary to the finest.
// A window that is still too large after one separator falls through to
// the next, ending in a hard character cut.
var defaultSeparators = []separator{
	literal("\n\n"),
	structureHeaders,
	literal("\n"),
	literal(". "),
	literal(" "),
}

// RecursiveChunker splits text into overlapping chunks of at most size
// runes, preferring paragraph, header, line, sentence and word boundaries
// in that order.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []separator
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &RecursiveChunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

func (c *RecursiveChunker) Size() int    { return c.size }
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Split returns the chunk spans of text in rune offsets. Every span except
// the last is between overlap and size runes long, consecutive spans share
// exactly overlap runes, and the spans cover the whole text.
func (c *RecursiveChunker) Split(text string) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	atoms := c.atomize(runes, 0, len(runes), 0, nil)
	return c.merge(atoms)
}

// atomize breaks runes[lo:hi] into pieces no longer than size-overlap so
// that any piece still fits in a chunk after the overlap carried over from
// the previous one.
func (c *RecursiveChunker) atomize(runes []rune, lo, hi, level int, out []Span) []Span {
	limit := c.size - c.overlap
	if hi-lo <= limit {
		return append(out, Span{Start: lo, End: hi})
	}
	if level >= len(c.separators) {
		for start := lo; start < hi; start += limit {
			out = append(out, Span{Start: start, End: min(start+limit, hi)})
		}
		return out
	}

	cuts := c.separators[level](runes, lo, hi)
	if len(cuts) == 0 {
		return c.atomize(runes, lo, hi, level+1, out)
	}

	start := lo
	for _, cut := range append(cuts, hi) {
		if cut-start <= limit {
			out = append(out, Span{Start: start, End: cut})
		} else {
			out = c.atomize(runes, start, cut, level+1, out)
		}
		start = cut
	}
	return out
}

// merge packs atoms greedily into chunks of at most size runes. Each chunk
// after the first restarts overlap runes before the end of its predecessor.
func (c *RecursiveChunker) merge(atoms []Span) []Span {
	var spans []Span
	start := 0
	i := 0
	for i < len(atoms) {
		end := start
		for i < len(atoms) && atoms[i].End-start <= c.size {
			end = atoms[i].End
			i++
		}
		spans = append(spans, Span{Start: start, End: end})
		start = end - c.overlap
	}
	return spans
}

func literal(sep string) separator {
	pattern := []rune(sep)
	return func(runes []rune, lo, hi int) []int {
		var cuts []int
		for i := lo; i+len(pattern) <= hi; i++ {
			if !hasPrefixAt(runes, i, pattern) {
				continue
			}
			cut := i + len(pattern)
			if cut < hi {
				cuts = append(cuts, cut)
			}
			i = cut - 1
		}
		return cuts
	}
}

// structureHeaders cuts before every line that opens with a structure
// keyword such as "Section 4" or "CLAUSE 12.1".
func structureHeaders(runes []rune, lo, hi int) []int {
	var cuts []int
	for i := lo + 1; i < hi; i++ {
		if runes[i-1] != '\n' {
			continue
		}
		if isHeaderLine(runes[i:hi]) {
			cuts = append(cuts, i)
		}
	}
	return cuts
}

func isHeaderLine(line []rune) bool {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	rest := line[i:]
	for _, kw := range structureKeywords {
		if len(rest) < len(kw) {
			continue
		}
		if !strings.EqualFold(string(rest[:len(kw)]), kw) {
			continue
		}
		if len(rest) == len(kw) || !unicode.IsLetter(rest[len(kw)]) {
			return true
		}
	}
	return false
}

func hasPrefixAt(runes []rune, i int, prefix []rune) bool {
	for j, r := range prefix {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
