package extract

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// PDFExtractor parses portable documents with pdfcpu: per-page text from
// content streams, page and embedded-image counts, and best-effort table
// detection.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Name() string { return "pdf-parser/1" }

var pdfLiteralRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

func (e *PDFExtractor) Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error) {
	if err := checkInput(data, hints); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, common.NewParseError("invalid PDF structure", err)
	}

	raw := &PDFRaw{PageCount: pctx.PageCount}
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		raw.ImageCount += len(pdfcpu.ImageObjNrs(pctx, pageNr))
		text := pdfPageText(pctx, pageNr)
		raw.PageTexts = append(raw.PageTexts, text)
		raw.Tables = append(raw.Tables, detectTableRows(text)...)
	}

	md := NewMetadata(originalFilename, constants.PDF)
	md.FileSize = int64(len(data))
	md.MIMEHint = "application/pdf"
	md.Raw = raw

	md.applyFilename()
	md.applyHints(hints)
	md.backfillFromText(raw.PageTexts...)

	var bonus float64
	if pagesWithText(raw.PageTexts) > 0 {
		bonus += 0.10
	}
	if len(raw.Tables) > 0 {
		bonus += 0.05
	}
	scoreConfidence(md, bonus)
	return md, nil
}

func pagesWithText(pages []string) int {
	n := 0
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// pdfPageText pulls text-show operators out of one page's content stream.
// Failures degrade to an empty page rather than aborting the extraction.
func pdfPageText(pctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil {
		return ""
	}
	stream, err := io.ReadAll(r)
	if err != nil || len(stream) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, line := range bytes.Split(stream, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")), bytes.HasSuffix(line, []byte("'")):
			for _, m := range pdfLiteralRe.FindAllSubmatch(line, -1) {
				if s := decodePDFLiteral(m[1]); s != "" {
					sb.WriteString(s)
				}
			}
			if bytes.HasSuffix(line, []byte("'")) {
				sb.WriteByte('\n')
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")), bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

// decodePDFLiteral resolves the escape sequences allowed inside a PDF
// string literal, including octal escapes.
func decodePDFLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '(', ')', '\\':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

var cellSplitRe = regexp.MustCompile(`\t| {2,}`)

// detectTableRows finds lines that look like table rows: two or more
// cells separated by tabs or runs of spaces. Best effort only.
func detectTableRows(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cells := cellSplitRe.Split(line, -1)
		if len(cells) < 2 {
			continue
		}
		clean := cells[:0]
		for _, c := range cells {
			if c = strings.TrimSpace(c); c != "" {
				clean = append(clean, c)
			}
		}
		if len(clean) >= 2 {
			rows = append(rows, clean)
		}
	}
	return rows
}
