package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func defaultTiers() []Tier {
	return []Tier{
		{MinDocChars: 200_000, ChunkSize: 600, Overlap: 150},
		{MinDocChars: 100_000, ChunkSize: 1000, Overlap: 200},
		{MinDocChars: 0, ChunkSize: 1500, Overlap: 300},
	}
}

func policyText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Section %d. The insured must notify the insurer within %d days of any claim. ", i+1, i%60+1)
		b.WriteString("Coverage applies to hospitalisation, day care procedures and domiciliary treatment.\n\n")
	}
	return b.String()
}

// assertSpanInvariants checks size bounds, exact overlap and full coverage.
func assertSpanInvariants(t *testing.T, spans []Span, textLen, size, overlap int) {
	t.Helper()
	require.NotEmpty(t, spans)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, textLen, spans[len(spans)-1].End)

	for i, s := range spans {
		assert.LessOrEqual(t, s.Len(), size, "span %d too long", i)
		if i < len(spans)-1 {
			assert.GreaterOrEqual(t, s.Len(), overlap, "span %d shorter than overlap", i)
			assert.Equal(t, s.End-overlap, spans[i+1].Start, "span %d overlap", i)
		}
	}
}

func TestRecursiveChunker_Invariants(t *testing.T) {
	text := policyText(80)
	c, err := NewRecursiveChunker(500, 100)
	require.NoError(t, err)

	spans := c.Split(text)
	assertSpanInvariants(t, spans, len([]rune(text)), 500, 100)
}

func TestRecursiveChunker_CoverageReconstruction(t *testing.T) {
	text := policyText(30)
	runes := []rune(text)
	c, err := NewRecursiveChunker(300, 60)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for i, s := range c.Split(text) {
		piece := runes[s.Start:s.End]
		if i > 0 {
			piece = piece[60:]
		}
		rebuilt.WriteString(string(piece))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestRecursiveChunker_ShortTextIsOneChunk(t *testing.T) {
	c, err := NewRecursiveChunker(1500, 300)
	require.NoError(t, err)

	spans := c.Split("The grace period is thirty days.")
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 0, End: 32}, spans[0])

	assert.Empty(t, c.Split(""))
}

func TestRecursiveChunker_PrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("word ", 30) // 150 runes
	text := para + "\n\n" + para + "\n\n" + para

	c, err := NewRecursiveChunker(200, 0)
	require.NoError(t, err)

	spans := c.Split(text)
	require.Len(t, spans, 3)
	for i := 0; i < 2; i++ {
		chunk := string([]rune(text)[spans[i].Start:spans[i].End])
		assert.True(t, strings.HasSuffix(chunk, "\n\n"), "chunk %d should end at a paragraph break: %q", i, chunk)
	}
}

func TestRecursiveChunker_SplitsBeforeStructureHeaders(t *testing.T) {
	body := strings.Repeat("x", 90)
	text := "SECTION 1 Definitions\n" + body + "\nClause 2 Exclusions\n" + body + "\narticle 3 Claims\n" + body

	c, err := NewRecursiveChunker(130, 0)
	require.NoError(t, err)

	runes := []rune(text)
	var starts []string
	for _, s := range c.Split(text) {
		starts = append(starts, string(runes[s.Start:min(s.Start+9, s.End)]))
	}
	assert.Equal(t, []string{"SECTION 1", "Clause 2 ", "article 3"}, starts)
}

func TestRecursiveChunker_HeaderKeywordNeedsWordBoundary(t *testing.T) {
	assert.True(t, isHeaderLine([]rune("  Schedule A - Benefits")))
	assert.True(t, isHeaderLine([]rune("ANNEXURE")))
	assert.False(t, isHeaderLine([]rune("Sectional limits apply")))
	assert.False(t, isHeaderLine([]rune("The clause above")))
}

func TestRecursiveChunker_HardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("a", 1000)
	c, err := NewRecursiveChunker(100, 20)
	require.NoError(t, err)

	spans := c.Split(text)
	assertSpanInvariants(t, spans, 1000, 100, 20)
}

func TestRecursiveChunker_MultibyteOffsets(t *testing.T) {
	text := strings.Repeat("प्रीमियम भुगतान अवधि ", 40)
	c, err := NewRecursiveChunker(120, 30)
	require.NoError(t, err)

	spans := c.Split(text)
	assertSpanInvariants(t, spans, len([]rune(text)), 120, 30)
}

func TestNewRecursiveChunker_RejectsBadParams(t *testing.T) {
	_, err := NewRecursiveChunker(0, 0)
	assert.Error(t, err)
	_, err = NewRecursiveChunker(100, 100)
	assert.Error(t, err)
	_, err = NewRecursiveChunker(100, -1)
	assert.Error(t, err)
}

func TestPolicy_Tiers(t *testing.T) {
	p, err := NewPolicy(defaultTiers())
	require.NoError(t, err)

	tests := []struct {
		docLen      int
		wantSize    int
		wantOverlap int
	}{
		{250_000, 600, 150},
		{200_001, 600, 150},
		{200_000, 1000, 200},
		{150_000, 1000, 200},
		{100_000, 1500, 300},
		{5_000, 1500, 300},
		{0, 1500, 300},
	}
	for _, tt := range tests {
		size, overlap := p.Params(tt.docLen)
		assert.Equal(t, tt.wantSize, size, "docLen %d", tt.docLen)
		assert.Equal(t, tt.wantOverlap, overlap, "docLen %d", tt.docLen)
	}
}

func TestNewPolicy_RejectsInvalidTiers(t *testing.T) {
	_, err := NewPolicy(nil)
	assert.Error(t, err)

	_, err = NewPolicy([]Tier{
		{MinDocChars: 100_000, ChunkSize: 2000, Overlap: 100},
		{MinDocChars: 0, ChunkSize: 500, Overlap: 100},
	})
	assert.Error(t, err, "larger chunks for longer documents")

	_, err = NewPolicy([]Tier{{MinDocChars: 0, ChunkSize: 100, Overlap: 100}})
	assert.Error(t, err)
}

func TestAdaptiveChunker_LargeDocumentUsesSmallChunks(t *testing.T) {
	p, err := NewPolicy(defaultTiers())
	require.NoError(t, err)

	text := policyText(1700)
	require.Greater(t, len([]rune(text)), 200_000)

	doc := domain.Document{
		Ref:  domain.DocumentRef{URL: "https://example.com/policy.pdf", Format: domain.FormatPDF},
		Text: text,
	}
	chunks, err := NewAdaptiveChunker(p).Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 600)
	}
}

func TestAdaptiveChunker_SmallDocument(t *testing.T) {
	p, err := NewPolicy(defaultTiers())
	require.NoError(t, err)

	text := policyText(35)
	require.InDelta(t, 5_000, len([]rune(text)), 1_500)

	doc := domain.Document{Ref: domain.DocumentRef{URL: "u"}, Text: text}
	chunks, err := NewAdaptiveChunker(p).Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	for i, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 1500)
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		if i > 0 {
			assert.Equal(t, chunks[i-1].End-300, ch.Start)
		}
	}
}

func TestAdaptiveChunker_PagesAndIDs(t *testing.T) {
	p, err := NewPolicy([]Tier{{MinDocChars: 0, ChunkSize: 60, Overlap: 10}})
	require.NoError(t, err)

	page1 := "[Page 1]\n" + strings.Repeat("alpha ", 10) + "\n\n"
	page2 := "[Page 2]\n" + strings.Repeat("beta ", 30)
	doc := domain.Document{
		Ref:  domain.DocumentRef{URL: "https://example.com/a.pdf", Format: domain.FormatPDF},
		Text: page1 + page2,
		Pages: []domain.PageSpan{
			{Number: 1, Start: 0},
			{Number: 2, Start: len([]rune(page1))},
		},
	}

	chunks, err := NewAdaptiveChunker(p).Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[len(chunks)-1].Page)

	seen := make(map[string]bool)
	for _, ch := range chunks {
		assert.False(t, seen[ch.ID], "duplicate chunk id %s", ch.ID)
		seen[ch.ID] = true
		assert.Equal(t, doc.PageAt(ch.Start), ch.Page)
		assert.Equal(t, doc.Ref, ch.Source)
	}

	again, err := NewAdaptiveChunker(p).Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}
