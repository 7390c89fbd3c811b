package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{0.8, "80.00"},
		{0, "0.00"},
		{1, "100.00"},
		{0.1234, "12.34"},
		{0.5, "50.00"},
		{0.80125, "80.13"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.in))
		})
	}
}

func TestFormatHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.125, "0.13"},
		{80.125, "80.13"},
		{2.675, "2.68"},
		{12.344, "12.34"},
		{99.995, "100.00"},
		{9.999, "10.00"},
		{7, "7.00"},
		{0.5, "0.50"},
		{-1.005, "-1.01"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatHalfUp(tt.in))
		})
	}
}

func TestPolishDefault(t *testing.T) {
	m := Default()
	assert.Equal(t, "pl", m.Language())
	assert.Equal(t, "Znak: speed limit 60 (pewność: 80.00%)", m.Classification("speed limit 60", 0.8))
	assert.Equal(t, "Model nie jest załadowany.", m.NotLoaded())
	assert.Equal(t, "Nie wykryto żadnych znaków.", m.NoDetections())
}

func TestEnglish(t *testing.T) {
	m := New("en-US")
	assert.Equal(t, "en", m.Language())
	assert.Equal(t, "Sign: stop (confidence: 91.50%)", m.Classification("stop", 0.915))
	assert.Equal(t, "Model is not loaded.", m.NotLoaded())
	assert.Equal(t, "Invalid image.", m.InvalidImage())
}

func TestUnknownLanguageFallsBackToPolish(t *testing.T) {
	for _, lang := range []string{"de", "xx-invalid-!!", ""} {
		m := New(lang)
		assert.Equal(t, "Model nie jest załadowany.", m.NotLoaded(), lang)
	}
}

func TestSummary(t *testing.T) {
	m := Default()
	got := m.Summary([]Entry{
		{Label: "stop", Confidence: 0.9},
		{Label: "crosswalk", Confidence: 0.75},
	})
	assert.Equal(t, "Wynik:\nstop (90.00%)\ncrosswalk (75.00%)\n", got)

	assert.Equal(t, "Nie wykryto żadnych znaków.", m.Summary(nil))
	assert.Equal(t, "No signs detected.", New("en").Summary([]Entry{}))
}
