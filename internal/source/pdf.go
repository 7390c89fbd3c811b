// Package source turns PDF documents into batch items by extracting the
// images embedded in their pages.
package source

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/imageio"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFOptions controls extraction.
type PDFOptions struct {
	Pages         string // e.g. "1-3,5"; empty selects every page
	UserPassword  string
	OwnerPassword string
}

// PageImage is one image found on a PDF page.
type PageImage struct {
	Page  int
	Index int // position among the page's images, from 0
	Image image.Image
}

func (o PDFOptions) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if o.UserPassword != "" {
		conf.UserPW = o.UserPassword
	}
	if o.OwnerPassword != "" {
		conf.OwnerPW = o.OwnerPassword
	}
	return conf
}

// ExtractPDF extracts the embedded images of the selected pages, ordered by
// page and then by their position on the page.
func ExtractPDF(filename string, opts PDFOptions) ([]PageImage, error) {
	pageNumbers, err := ParsePageRange(opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", opts.Pages, err)
	}

	tempDir, err := os.MkdirTemp("", "roadsign-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, p := range pageNumbers {
		selected = append(selected, strconv.Itoa(p))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, opts.configuration()); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	images, err := collectExtractedImages(tempDir, base)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	slog.Debug("Extracted PDF images", "file", filename, "images", len(images))
	return images, nil
}

// PDFItems extracts a PDF into batch items named after the document.
func PDFItems(filename string, opts PDFOptions) ([]batch.Item, error) {
	images, err := ExtractPDF(filename, opts)
	if err != nil {
		return nil, err
	}
	items := make([]batch.Item, len(images))
	for i, pi := range images {
		items[i] = batch.Item{Source: filename, Page: pi.Page, Image: pi.Image}
	}
	return items, nil
}

type extracted struct {
	page int
	name string
	path string
}

// collectExtractedImages loads the files pdfcpu wrote to dir. Files that do
// not carry a page number or do not decode are skipped.
func collectExtractedImages(dir, base string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []extracted
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page, err := parsePageFromFilename(e.Name(), base)
		if err != nil {
			continue
		}
		files = append(files, extracted{page: page, name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].page != files[j].page {
			return files[i].page < files[j].page
		}
		return files[i].name < files[j].name
	})

	var out []PageImage
	perPage := map[int]int{}
	for _, f := range files {
		img, _, err := imageio.Load(f.path)
		if err != nil {
			slog.Debug("Skipping unreadable PDF image", "file", f.name, "error", err)
			continue
		}
		out = append(out, PageImage{Page: f.page, Index: perPage[f.page], Image: img})
		perPage[f.page]++
	}
	return out, nil
}

// parsePageFromFilename reads the page number from an extracted file name of
// the form <base>_<page>_<name>.<ext>.
func parsePageFromFilename(filename, base string) (int, error) {
	rest, ok := strings.CutPrefix(filename, base+"_")
	if !ok {
		return 0, errors.New("not a page file")
	}
	num, _, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, errors.New("invalid filename format")
	}
	page, err := strconv.Atoi(num)
	if err != nil || page < 1 {
		return 0, errors.New("invalid page number")
	}
	return page, nil
}

// IsPasswordError reports whether err looks like an encryption or password
// failure.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"password", "encrypted", "decrypt", "authentication"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
