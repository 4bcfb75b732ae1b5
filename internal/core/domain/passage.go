package domain

type PassageMetadata struct {
	Company       string `json:"company"`
	Symbol        string `json:"symbol"`
	SourceFile    string `json:"source_file"`
	RowIndex      int    `json:"row_index"`
	DataPointName string `json:"data_point_name,omitempty"`
	Year          string `json:"year,omitempty"`
}

// Passage is the text rendering of one company table row.
type Passage struct {
	Text     string          `json:"text"`
	Metadata PassageMetadata `json:"metadata"`
}

// Chunk is a bounded slice of a passage, the unit that gets embedded.
type Chunk struct {
	Text       string          `json:"text"`
	ChunkIndex int             `json:"chunk_index"`
	Metadata   PassageMetadata `json:"metadata"`
}

// RetrievedChunk is a search hit from the vector index.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
}
