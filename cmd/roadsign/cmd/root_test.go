package cmd

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/config"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "roadsign", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"classify", "detect", "batch", "pdf", "serve", "models", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandVersion(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "roadsign dev")
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, stderr, err := execute(t, "--no-such-flag")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown flag")
}

func TestCommandsRequireArguments(t *testing.T) {
	for _, name := range []string{"classify", "detect", "batch", "pdf"} {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, name)
			require.Error(t, err)
		})
	}
}

func TestFreshCommandTrees(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "en.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("language: en\n"), 0o600))

	out, _, err := execute(t, "--config", cfgFile, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "language: en")

	// a second tree does not inherit the first one's config file
	out, _, err = execute(t, "--language", "pl", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "language: pl")
}

func TestConfigShowWarnsOnInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("log_level: chatty\n"), 0o600))

	out, stderr, err := execute(t, "--config", cfgFile, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: chatty")
	assert.Contains(t, stderr, "invalid log level")

	_, _, err = execute(t, "--config", cfgFile, "models")
	require.Error(t, err)
}

func TestOverlayOptions(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "x"}
		addOverlayFlags(c)
		return c
	}
	cfg := config.DefaultConfig()

	t.Run("defaults from config", func(t *testing.T) {
		opts, err := overlayOptions(newCmd(), &cfg)
		require.NoError(t, err)
		assert.Empty(t, opts.OverlayDir)
		assert.Equal(t, render.FormatPNG, opts.OverlayFormat)
		require.NotNil(t, opts.OverlayStyle)
		assert.Equal(t, color.RGBA{0xE6, 0x1E, 0x1E, 255}, opts.OverlayStyle.BoxColor)
	})

	t.Run("flags win", func(t *testing.T) {
		c := newCmd()
		require.NoError(t, c.ParseFlags([]string{"--overlay-dir", "out", "--overlay-format", "webp", "--overlay-color", "#00FF00"}))
		opts, err := overlayOptions(c, &cfg)
		require.NoError(t, err)
		assert.Equal(t, "out", opts.OverlayDir)
		assert.Equal(t, render.FormatWebP, opts.OverlayFormat)
		assert.Equal(t, color.RGBA{0, 255, 0, 255}, opts.OverlayStyle.BoxColor)
	})

	t.Run("bad values", func(t *testing.T) {
		c := newCmd()
		require.NoError(t, c.ParseFlags([]string{"--overlay-format", "gif"}))
		_, err := overlayOptions(c, &cfg)
		require.Error(t, err)

		c = newCmd()
		require.NoError(t, c.ParseFlags([]string{"--overlay-color", "red"}))
		_, err = overlayOptions(c, &cfg)
		require.Error(t, err)
	})
}

func TestWriteResults(t *testing.T) {
	ok := batch.Result{
		Item:           batch.Item{Source: "a.png"},
		Classification: &classifier.Result{Index: 6, Label: "speed limit 60", Confidence: 0.8},
		Text:           "Sign: speed limit 60 (confidence: 80.00%)",
	}
	failed := batch.Result{Item: batch.Item{Source: "b.png"}, Err: errors.New("boom")}

	t.Run("single text result prints only the text", func(t *testing.T) {
		var out bytes.Buffer
		c := &cobra.Command{}
		c.SetOut(&out)
		require.NoError(t, writeResults(c, &batch.Report{Results: []batch.Result{ok}}, "text", ""))
		assert.Equal(t, "Sign: speed limit 60 (confidence: 80.00%)\n", out.String())
	})

	t.Run("failures are reported", func(t *testing.T) {
		var out bytes.Buffer
		c := &cobra.Command{}
		c.SetOut(&out)
		err := writeResults(c, &batch.Report{Results: []batch.Result{ok, failed}}, "text", "")
		require.ErrorIs(t, err, errItemsFailed)
		assert.Contains(t, out.String(), "# a.png")
		assert.Contains(t, out.String(), "error: boom")
	})

	t.Run("output file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "out.json")
		c := &cobra.Command{}
		require.NoError(t, writeResults(c, &batch.Report{Results: []batch.Result{ok}}, "json", path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"label": "speed limit 60"`)
	})
}
