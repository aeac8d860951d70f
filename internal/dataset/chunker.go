package dataset

import (
	"fmt"
	"strings"
)

// DefaultChunkSize is the number of rows per chunk when none is configured.
const DefaultChunkSize = 25

// Chunk is a contiguous row range of the dataset serialized to text.
// EndRow is inclusive.
type Chunk struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	StartRow int    `json:"start_row"`
	EndRow   int    `json:"end_row"`
}

// RowCount returns how many dataset rows the chunk covers.
func (c Chunk) RowCount() int {
	return c.EndRow - c.StartRow + 1
}

// BuildChunks splits the dataset into fixed-size, non-overlapping row
// groups. chunkSize is clamped to [1, RowCount]; only the final chunk may
// be shorter than chunkSize.
func BuildChunks(ds Dataset, chunkSize int) ([]Chunk, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	total := ds.RowCount()
	if total == 0 {
		return []Chunk{}, nil
	}
	chunkSize = clampChunkSize(chunkSize, total)

	chunks := make([]Chunk, 0, (total+chunkSize-1)/chunkSize)
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("chunk_%d_%d", start, end),
			Content:  renderRows(ds.Columns, ds.Rows[start:end]),
			StartRow: start,
			EndRow:   end - 1,
		})
	}
	return chunks, nil
}

// ParseChunkID recovers the row range from an id produced by BuildChunks.
// end is exclusive.
func ParseChunkID(id string) (start, end int, ok bool) {
	if _, err := fmt.Sscanf(id, "chunk_%d_%d", &start, &end); err != nil {
		return 0, 0, false
	}
	if start < 0 || end <= start || id != fmt.Sprintf("chunk_%d_%d", start, end) {
		return 0, 0, false
	}
	return start, end, true
}

func clampChunkSize(size, total int) int {
	if size < 1 {
		return 1
	}
	if size > total {
		return total
	}
	return size
}

// renderRows writes every column of every row as col=value, rows newline-joined.
func renderRows(columns []string, rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, col := range columns {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(col)
			b.WriteByte('=')
			b.WriteString(row[j])
		}
	}
	return b.String()
}
