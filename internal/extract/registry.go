package extract

import (
	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// Registry maps detected file types to their extractor.
type Registry struct {
	byType map[constants.FileType]Extractor
}

// NewRegistry wires the default extractor per supported file type.
func NewRegistry(ocr *OCREngine) *Registry {
	return &Registry{byType: map[constants.FileType]Extractor{
		constants.DXF:         NewDXFExtractor(),
		constants.CUTJOB:      NewCutJobExtractor(),
		constants.PDF:         NewPDFExtractor(),
		constants.SPREADSHEET: NewSpreadsheetExtractor(),
		constants.IMAGE:       NewImageExtractor(ocr),
	}}
}

// For returns the extractor for a file type, or ErrInvalidInput for
// types nothing can parse.
func (r *Registry) For(ft constants.FileType) (Extractor, error) {
	ex, ok := r.byType[ft]
	if !ok {
		return nil, common.NewAppError("UNSUPPORTED_TYPE", "no extractor for file type "+string(ft), common.ErrInvalidInput)
	}
	return ex, nil
}
