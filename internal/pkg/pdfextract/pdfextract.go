// Package pdfextract turns raw PDF bytes into per-page text and PNG images.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/hhrutter/tiff"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"
)

const (
	SourceText         = "pdf_text"
	SourceImageCaption = "image_caption"
)

var ErrExtraction = errors.New("pdf extraction failed")

type PageText struct {
	Page    int
	Content string
	Source  string
}

type PageImage struct {
	Page       int
	ImageIndex int
	PNG        []byte
	Source     string
}

type Result struct {
	TotalPages int
	Texts      []PageText
	Images     []PageImage
}

// Extract parses data as a PDF. Pages are 1-indexed; pages without text are
// omitted from Texts. Only an unparseable document is an error; images that
// cannot be decoded are skipped.
func Extract(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrExtraction)
	}
	texts, total, err := extractText(data)
	if err != nil {
		return nil, err
	}
	images, err := extractImages(data)
	if err != nil {
		slog.Warn("pdf image extraction failed", "err", err)
		images = nil
	}
	return &Result{TotalPages: total, Texts: texts, Images: images}, nil
}

func extractText(data []byte) (texts []PageText, total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts, total = nil, 0
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	total = reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		texts = append(texts, PageText{Page: i, Content: content, Source: SourceText})
	}
	return texts, total, nil
}

func extractImages(data []byte) (images []PageImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			images = nil
			err = fmt.Errorf("pdf image parser panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, err
	}

	for _, byObj := range pages {
		raw := make([]model.Image, 0, len(byObj))
		for _, img := range byObj {
			raw = append(raw, img)
		}
		sort.Slice(raw, func(i, j int) bool {
			if raw[i].PageNr != raw[j].PageNr {
				return raw[i].PageNr < raw[j].PageNr
			}
			return raw[i].ObjNr < raw[j].ObjNr
		})
		for _, img := range raw {
			if img.Reader == nil || img.FileType == "jpx" {
				continue
			}
			b, err := io.ReadAll(img)
			if err != nil {
				slog.Warn("read pdf image failed", "page", img.PageNr, "obj", img.ObjNr, "err", err)
				continue
			}
			encoded, err := ToPNG(b)
			if err != nil {
				slog.Warn("decode pdf image failed", "page", img.PageNr, "obj", img.ObjNr, "type", img.FileType, "err", err)
				continue
			}
			images = append(images, PageImage{Page: img.PageNr, PNG: encoded, Source: SourceImageCaption})
		}
	}

	sort.SliceStable(images, func(i, j int) bool { return images[i].Page < images[j].Page })
	perPage := make(map[int]int)
	for i := range images {
		images[i].ImageIndex = perPage[images[i].Page]
		perPage[images[i].Page]++
	}
	return images, nil
}

// ToPNG decodes a JPEG, PNG or TIFF image and re-encodes it as PNG.
// CMYK images are converted to RGB first.
func ToPNG(raw []byte) ([]byte, error) {
	img, err := decode(raw)
	if err != nil {
		return nil, err
	}
	img = normalize(img)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode reads TIFF with the codec pdfcpu writes it with, which keeps
// 8-bit CMYK.
func decode(raw []byte) (image.Image, error) {
	if bytes.HasPrefix(raw, []byte("II*\x00")) || bytes.HasPrefix(raw, []byte("MM\x00*")) {
		return tiff.Decode(bytes.NewReader(raw))
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

func normalize(img image.Image) image.Image {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return img
	}
	if _, ok := img.(*image.Paletted); ok {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
