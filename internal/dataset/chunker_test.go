package dataset

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDataset(rows int) Dataset {
	ds := Dataset{Columns: []string{"year", "value"}}
	for i := 0; i < rows; i++ {
		ds.Rows = append(ds.Rows, []string{fmt.Sprintf("%d", 2000+i), fmt.Sprintf("%d", i*10)})
	}
	return ds
}

func TestBuildChunks_Coverage(t *testing.T) {
	for _, rows := range []int{1, 2, 7, 25, 26, 100} {
		for _, size := range []int{1, 3, 25, 1000} {
			t.Run(fmt.Sprintf("rows=%d/size=%d", rows, size), func(t *testing.T) {
				chunks, err := BuildChunks(makeDataset(rows), size)
				require.NoError(t, err)
				require.NotEmpty(t, chunks)

				next := 0
				for i, c := range chunks {
					assert.Equal(t, next, c.StartRow, "gap or overlap before chunk %d", i)
					assert.LessOrEqual(t, c.StartRow, c.EndRow)
					assert.Less(t, c.EndRow, rows)
					assert.LessOrEqual(t, c.RowCount(), size)
					if i < len(chunks)-1 && size <= rows {
						assert.Equal(t, size, c.RowCount(), "only the final chunk may be short")
					}
					next = c.EndRow + 1
				}
				assert.Equal(t, rows, next)
			})
		}
	}
}

func TestBuildChunks_UniqueIDs(t *testing.T) {
	chunks, err := BuildChunks(makeDataset(53), 5)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestBuildChunks_Deterministic(t *testing.T) {
	ds := makeDataset(40)

	first, err := BuildChunks(ds, 7)
	require.NoError(t, err)
	second, err := BuildChunks(ds, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildChunks_Content(t *testing.T) {
	ds := Dataset{
		Columns: []string{"year", "value"},
		Rows:    [][]string{{"2023", "123"}, {"2024", "130"}},
	}

	chunks, err := BuildChunks(ds, 25)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "chunk_0_2", chunks[0].ID)
	assert.Equal(t, "year=2023 value=123\nyear=2024 value=130", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].StartRow)
	assert.Equal(t, 1, chunks[0].EndRow)
}

func TestBuildChunks_ClampsSize(t *testing.T) {
	t.Run("zero becomes one", func(t *testing.T) {
		chunks, err := BuildChunks(makeDataset(3), 0)
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("negative becomes one", func(t *testing.T) {
		chunks, err := BuildChunks(makeDataset(2), -10)
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})

	t.Run("oversized becomes row count", func(t *testing.T) {
		chunks, err := BuildChunks(makeDataset(4), 50)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, 3, chunks[0].EndRow)
	})
}

func TestBuildChunks_Errors(t *testing.T) {
	t.Run("zero columns", func(t *testing.T) {
		_, err := BuildChunks(Dataset{Rows: [][]string{{}}}, 5)
		assert.ErrorIs(t, err, ErrNoColumns)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("ragged row", func(t *testing.T) {
		ds := Dataset{Columns: []string{"a", "b"}, Rows: [][]string{{"1"}}}
		_, err := BuildChunks(ds, 5)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("no rows yields no chunks", func(t *testing.T) {
		chunks, err := BuildChunks(Dataset{Columns: []string{"a"}}, 5)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestReadCSV(t *testing.T) {
	t.Run("header and rows", func(t *testing.T) {
		ds, err := ReadCSV(strings.NewReader("\ufeffyear, value\n2023,123\n2024,130\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"year", "value"}, ds.Columns)
		assert.Equal(t, 2, ds.RowCount())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrNoColumns)
	})

	t.Run("ragged rows", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("a,b\n1\n"))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV("/nonexistent/data.csv")
	assert.Error(t, err)
}

func TestParseChunkID(t *testing.T) {
	tests := []struct {
		id    string
		start int
		end   int
		ok    bool
	}{
		{id: "chunk_0_25", start: 0, end: 25, ok: true},
		{id: "chunk_50_53", start: 50, end: 53, ok: true},
		{id: "chunk_5_5", ok: false},
		{id: "chunk_-1_3", ok: false},
		{id: "chunk_1_3_extra", ok: false},
		{id: "note-1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			start, end, ok := ParseChunkID(tt.id)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.start, start)
				assert.Equal(t, tt.end, end)
			}
		})
	}

	chunks, err := BuildChunks(makeDataset(30), 7)
	require.NoError(t, err)
	for _, c := range chunks {
		start, end, ok := ParseChunkID(c.ID)
		require.True(t, ok)
		assert.Equal(t, c.StartRow, start)
		assert.Equal(t, c.EndRow+1, end)
	}
}
