// Package pipeline drives one uploaded file end to end: validate,
// detect, extract, name, store, persist, notify.
package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// ValidateUpload rejects a file before any extractor runs: extension
// allow-list, size cap, and a magic-byte coherence check against the
// detected type.
func ValidateUpload(filename string, data []byte, maxBytes int64, fileType constants.FileType) error {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if !constants.AllowedExt(ext) {
		return common.NewValidationError(fmt.Sprintf("extension %q is not allowed", ext))
	}
	if len(data) == 0 {
		return common.NewValidationError("file is empty")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return common.NewValidationError(fmt.Sprintf("file exceeds the %d byte limit", maxBytes))
	}
	if !headerMatches(fileType, data) {
		return common.NewValidationError(fmt.Sprintf("content does not look like %s", fileType))
	}
	return nil
}

var imageMagic = [][]byte{
	{0x89, 'P', 'N', 'G'},
	{0xFF, 0xD8, 0xFF},       // jpeg
	{'B', 'M'},               // bmp
	{'G', 'I', 'F', '8'},     //
	{'I', 'I', 0x2A, 0x00},   // tiff little-endian
	{'M', 'M', 0x00, 0x2A},   // tiff big-endian
	{'R', 'I', 'F', 'F'},     // webp container
}

// headerMatches is a cheap coherence check between the claimed type and
// the leading bytes. Unknown types pass; extractors do the real parse.
func headerMatches(ft constants.FileType, data []byte) bool {
	switch ft {
	case constants.PDF:
		return bytes.HasPrefix(data, []byte("%PDF"))
	case constants.IMAGE:
		for _, magic := range imageMagic {
			if bytes.HasPrefix(data, magic) {
				return true
			}
		}
		return false
	case constants.CUTJOB:
		head := data
		if len(head) > 256 {
			head = head[:256]
		}
		return bytes.Contains(head, []byte("<"))
	case constants.SPREADSHEET:
		// xlsx is a zip, legacy xls is an OLE container, csv is text.
		if bytes.HasPrefix(data, []byte("PK")) || bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}) {
			return true
		}
		return textLike(data)
	case constants.DXF:
		return textLike(data)
	default:
		return true
	}
}

func textLike(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.ContainsRune(head, 0) {
		return false
	}
	// Tolerate a multibyte rune split at the cutoff.
	for !utf8.Valid(head) && len(head) > 508 {
		head = head[:len(head)-1]
	}
	return utf8.Valid(head)
}
