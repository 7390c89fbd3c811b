// Package i18n renders the user-facing result strings. Polish is the default
// language; English is available for the CLI and server.
package i18n

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	keyClassification = "classification"
	keyNotLoaded      = "not_loaded"
	keyInvalidImage   = "invalid_image"
	keyNoDetections   = "no_detections"
	keySummaryHeader  = "summary_header"
	keySummaryLine    = "summary_line"
)

var supported = []language.Tag{language.Polish, language.English}

var translations = map[language.Tag]map[string]string{
	language.Polish: {
		keyClassification: "Znak: %s (pewność: %s%%)",
		keyNotLoaded:      "Model nie jest załadowany.",
		keyInvalidImage:   "Nieprawidłowy obraz.",
		keyNoDetections:   "Nie wykryto żadnych znaków.",
		keySummaryHeader:  "Wynik:\n",
		keySummaryLine:    "%s (%s%%)\n",
	},
	language.English: {
		keyClassification: "Sign: %s (confidence: %s%%)",
		keyNotLoaded:      "Model is not loaded.",
		keyInvalidImage:   "Invalid image.",
		keyNoDetections:   "No signs detected.",
		keySummaryHeader:  "Result:\n",
		keySummaryLine:    "%s (%s%%)\n",
	},
}

var (
	matcher = language.NewMatcher(supported)
	cat     = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Polish))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Entry is one labelled score in a detection summary.
type Entry struct {
	Label      string
	Confidence float32
}

// Messages formats result strings for one language.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns messages for the best match of lang ("pl", "en", "en-US", ...).
// Unknown or empty languages fall back to Polish.
func New(lang string) Messages {
	tag := language.Polish
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			_, idx, _ := matcher.Match(t)
			tag = supported[idx]
		}
	}
	return Messages{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}
}

// Default returns the Polish messages.
func Default() Messages { return New("") }

// Language returns the selected language tag.
func (m Messages) Language() string { return m.tag.String() }

// Percent renders a [0,1] confidence as a percentage with two decimals.
// The multiplication happens in float32 before widening.
func Percent(confidence float32) string {
	return formatHalfUp(float64(confidence * 100))
}

// formatHalfUp rounds the shortest decimal form of v to two places, ties
// away from zero. strconv alone would round the exact binary value to even.
func formatHalfUp(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	sign := ""
	if v < 0 {
		sign = "-"
	}
	whole, frac, _ := strings.Cut(strconv.FormatFloat(math.Abs(v), 'f', -1, 64), ".")
	if len(frac) <= 2 {
		return sign + whole + "." + frac + strings.Repeat("0", 2-len(frac))
	}

	digits := []byte(whole + frac[:2])
	if frac[2] >= '5' {
		i := len(digits) - 1
		for ; i >= 0 && digits[i] == '9'; i-- {
			digits[i] = '0'
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		} else {
			digits[i]++
		}
	}
	n := len(digits) - 2
	return sign + string(digits[:n]) + "." + string(digits[n:])
}

// Classification renders the top class, e.g. "Znak: stop (pewność: 80.00%)".
func (m Messages) Classification(label string, confidence float32) string {
	return m.printer.Sprintf(keyClassification, label, Percent(confidence))
}

// NotLoaded is returned by classification when the model is unavailable.
func (m Messages) NotLoaded() string { return m.printer.Sprintf(keyNotLoaded) }

// InvalidImage is returned by classification when no usable image was given.
func (m Messages) InvalidImage() string { return m.printer.Sprintf(keyInvalidImage) }

// NoDetections is shown when a detection pass found nothing.
func (m Messages) NoDetections() string { return m.printer.Sprintf(keyNoDetections) }

// Summary lists detections under a header, one "label (xx.xx%)" per line.
func (m Messages) Summary(entries []Entry) string {
	if len(entries) == 0 {
		return m.NoDetections()
	}
	var sb strings.Builder
	sb.WriteString(m.printer.Sprintf(keySummaryHeader))
	for _, e := range entries {
		sb.WriteString(m.printer.Sprintf(keySummaryLine, e.Label, Percent(e.Confidence)))
	}
	return sb.String()
}
