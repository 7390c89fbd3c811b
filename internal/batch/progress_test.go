package batch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProgress(&buf, "run ")

	p.OnStart(4)
	p.OnProgress(1, 4)
	p.OnError(2, errors.New("bad pixel"))
	p.OnProgress(4, 4)
	p.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "run 0/4")
	assert.Contains(t, out, "1/4 (25.0%)")
	assert.Contains(t, out, "Error at item 2: bad pixel")
	assert.Contains(t, out, "4/4 (100.0%)", "the final update is never throttled")
	assert.Contains(t, out, "run Completed in")
}

func TestConsoleProgressThrottles(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProgress(&buf, "")
	p.OnStart(100)
	p.OnProgress(1, 100)
	p.OnProgress(2, 100)
	assert.NotContains(t, buf.String(), "2/100", "updates within the interval are dropped")
}

func TestNoOpProgress(t *testing.T) {
	var p ProgressCallback = NoOpProgress{}
	assert.NotPanics(t, func() {
		p.OnStart(1)
		p.OnProgress(1, 1)
		p.OnError(1, errors.New("x"))
		p.OnComplete()
	})
}
