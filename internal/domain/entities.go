package domain

// Format identifies how raw document bytes are parsed.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatEmail Format = "email"
)

// DocumentRef locates a document and carries the format derived from it.
type DocumentRef struct {
	URL    string
	Format Format
}

// Page is the text of one physical page. Number is 1-based for paginated
// formats and 0 when the format has no page granularity.
type Page struct {
	Number int
	Text   string
}

// PageSpan records where a page begins inside Document.Text, in characters.
type PageSpan struct {
	Number int
	Start  int
}

// Document is the single text stream handed to the chunker.
type Document struct {
	Ref   DocumentRef
	Text  string
	Pages []PageSpan
}

// PageAt returns the page number containing the character offset pos.
func (d Document) PageAt(pos int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Start > pos {
			break
		}
		page = p.Number
	}
	return page
}

// Chunk is a bounded span of document text used as a retrieval unit.
// Start and End are character offsets into Document.Text.
type Chunk struct {
	ID     string
	Text   string
	Start  int
	End    int
	Page   int
	Source DocumentRef
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// AnswerStatus is the terminal state of one question.
type AnswerStatus string

const (
	StatusCacheHit AnswerStatus = "cache_hit"
	StatusAnswered AnswerStatus = "answered"
	StatusTimedOut AnswerStatus = "timed_out"
	StatusFailed   AnswerStatus = "failed"
)

type AnswerResult struct {
	Question  string       `json:"question"`
	Answer    string       `json:"answer"`
	FromCache bool         `json:"from_cache"`
	Status    AnswerStatus `json:"status"`
}

// Request is what a transport collaborator hands to the pipeline.
type Request struct {
	DocumentURL string   `json:"documents" yaml:"documents"`
	Questions   []string `json:"questions" yaml:"questions"`
}

// Response keeps answers in the same order as Request.Questions.
type Response struct {
	Answers []string       `json:"answers"`
	Results []AnswerResult `json:"-"`
}
