package types

// SourceRef points at a document chunk that supports a retrieval answer
type SourceRef struct {
	Source  string  `json:"source"`
	Chunk   int     `json:"chunk"`
	Excerpt string  `json:"excerpt,omitempty"`
	Score   float64 `json:"score"`
}

// RetrievalResult is the output of the retrieval analysis contract
type RetrievalResult struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
	OK      bool        `json:"ok"`
}

// ReportArtifact records where the rendered report was written
type ReportArtifact struct {
	MarkdownPath string `json:"markdown_path,omitempty"`
	JSONPath     string `json:"json_path,omitempty"`
	Summary      string `json:"summary,omitempty"`
}
