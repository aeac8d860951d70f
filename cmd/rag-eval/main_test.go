package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/faizmisman/dosm-faq-chatbot/internal/eval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "local run",
			args: []string{"--queries", "eval/queries.jsonl", "--api-key", ""},
			want: options{queries: "eval/queries.jsonl"},
		},
		{
			name: "remote run",
			args: []string{"--queries", "q.jsonl", "--url", "http://localhost:8000/predict", "--api-key", "secret", "--out", "out/report.json"},
			want: options{queries: "q.jsonl", url: "http://localhost:8000/predict", apiKey: "secret", out: "out/report.json"},
		},
		{name: "missing queries", args: []string{"--out", "r.json"}, wantErr: true},
		{name: "unknown flag", args: []string{"--queries", "q.jsonl", "--bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReport(t *testing.T) {
	report := eval.Report{
		Summary: eval.Summary{Count: 1, HitRate: 1},
		Results: []eval.QueryResult{{ID: "q1", Query: "population 2024", Confidence: 0.8}},
	}

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReport(report, "", &buf))

		var decoded eval.Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, 1, decoded.Summary.Count)
	})

	t.Run("file in new directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "eval.json")
		require.NoError(t, writeReport(report, path, &bytes.Buffer{}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"hit_rate": 1`)
	})
}
