package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleResults() []Result {
	return []Result{
		{
			Item:           Item{Source: "a.png"},
			Classification: &classifier.Result{Index: 6, Label: "speed limit 60", Confidence: 0.8},
			Text:           "Znak: speed limit 60 (pewność: 80.00%)",
			Duration:       12 * time.Millisecond,
		},
		{
			Item: Item{Source: "doc.pdf", Page: 2},
			Detections: []detector.Detection{
				{Label: "stop", ClassIndex: 2, Confidence: 0.9, Box: detector.Box{0.1, 0.2, 0.5, 0.6}},
				{Label: "children", ClassIndex: 9, Confidence: 0.7, Box: detector.Box{0, 0, 1, 1}},
			},
			Text: "Wynik:\nstop (90.00%)\nchildren (70.00%)\n",
		},
		{Item: Item{Source: "empty.png"}, Detections: []detector.Detection{}, Text: "Nie wykryto żadnych znaków."},
		{Item: Item{Source: "broken.png"}, Err: errors.New("decode failed")},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResults(), FormatText))
	want := "# a.png\nZnak: speed limit 60 (pewność: 80.00%)\n" +
		"\n# doc.pdf#page=2\nWynik:\nstop (90.00%)\nchildren (70.00%)\n" +
		"\n# empty.png\nNie wykryto żadnych znaków.\n" +
		"\n# broken.png\nerror: decode failed\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResults(), FormatJSON))

	var doc struct {
		Images []struct {
			File       string               `json:"file"`
			Page       int                  `json:"page"`
			Label      string               `json:"label"`
			Index      *int                 `json:"index"`
			Detections []detector.Detection `json:"detections"`
			Error      string               `json:"error"`
			Duration   int64                `json:"duration_ms"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Images, 4)
	assert.Equal(t, "speed limit 60", doc.Images[0].Label)
	require.NotNil(t, doc.Images[0].Index)
	assert.Equal(t, 6, *doc.Images[0].Index)
	assert.Equal(t, int64(12), doc.Images[0].Duration)
	assert.Equal(t, 2, doc.Images[1].Page)
	assert.Len(t, doc.Images[1].Detections, 2)
	assert.Equal(t, "decode failed", doc.Images[3].Error)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResults(), FormatYAML))

	var doc map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc["images"], 4)
	assert.Equal(t, "a.png", doc["images"][0]["file"])
	assert.Equal(t, "decode failed", doc["images"][3]["error"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResults(), FormatCSV))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	// header + classification + two detections + empty + error
	require.Len(t, rows, 6)
	assert.Equal(t, "file", rows[0][0])
	assert.Equal(t, []string{"a.png", "0", "speed limit 60", "6", "0.8000", "", "", "", "", ""}, rows[1])
	assert.Equal(t, []string{"doc.pdf", "2", "stop", "2", "0.9000", "0.1000", "0.2000", "0.5000", "0.6000", ""}, rows[2])
	assert.Equal(t, "children", rows[3][2])
	assert.Equal(t, "empty.png", rows[4][0])
	assert.Equal(t, "decode failed", rows[5][9])
}

func TestWriteUnknownFormat(t *testing.T) {
	require.Error(t, Write(&bytes.Buffer{}, nil, "xml"))
}
