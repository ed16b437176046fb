package extract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	// Registered decoders cover the accepted raster formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// ImageExtractor reads raster dimensions and, when tesseract is present,
// runs OCR over the image to recover embedded text.
type ImageExtractor struct {
	ocr *OCREngine
}

// NewImageExtractor builds the extractor; ocr may be nil to disable
// recognition entirely.
func NewImageExtractor(ocr *OCREngine) *ImageExtractor {
	return &ImageExtractor{ocr: ocr}
}

func (e *ImageExtractor) Name() string { return "image-parser/1" }

func (e *ImageExtractor) Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error) {
	if err := checkInput(data, hints); err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, common.NewParseError("undecodable image", err)
	}

	raw := &ImageRaw{
		Width:     cfg.Width,
		Height:    cfg.Height,
		ColorMode: colorMode(cfg.ColorModel),
	}

	md := NewMetadata(originalFilename, constants.IMAGE)
	md.FileSize = int64(len(data))
	md.MIMEHint = "image/" + format
	md.Raw = raw

	available := e.ocr != nil && e.ocr.Available()
	raw.OCRAvailable = available
	if available {
		ext := strings.TrimPrefix(filepath.Ext(originalFilename), ".")
		if ext == "" {
			ext = format
		}
		if text, err := e.ocr.Recognize(ctx, data, ext); err == nil {
			raw.OCRText = text
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// a failed run still counts as available; the text stays empty
	}

	md.applyFilename()
	md.applyHints(hints)
	if raw.OCRText != "" {
		md.backfillFromText(raw.OCRText)
	}

	var bonus float64
	switch {
	case raw.OCRText != "":
		bonus += 0.15
	case !available:
		bonus -= 0.10
	}
	scoreConfidence(md, bonus)
	return md, nil
}

func colorMode(m color.Model) string {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return "grayscale"
	case color.CMYKModel:
		return "cmyk"
	case color.NRGBAModel, color.RGBAModel, color.NRGBA64Model, color.RGBA64Model, color.YCbCrModel:
		return "rgb"
	default:
		if _, ok := m.(color.Palette); ok {
			return "indexed"
		}
		return "rgb"
	}
}
