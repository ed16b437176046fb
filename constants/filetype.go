package constants

import (
	"path/filepath"
	"strings"
)

// FileType tags the detected format of an uploaded file.
type FileType string

const (
	DXF         FileType = "DXF"
	CUTJOB      FileType = "CUTJOB"
	PDF         FileType = "PDF"
	SPREADSHEET FileType = "SPREADSHEET"
	IMAGE       FileType = "IMAGE"
	UNKNOWN     FileType = "UNKNOWN"
)

// ModeAuto selects format detection from the filename extension.
const ModeAuto = "AUTO"

// extToType is the AUTO-mode extension lookup table.
var extToType = map[string]FileType{
	"dxf":   DXF,
	"lbrn":  CUTJOB,
	"lbrn2": CUTJOB,
	"pdf":   PDF,
	"xlsx":  SPREADSHEET,
	"xls":   SPREADSHEET,
	"csv":   SPREADSHEET,
	"png":   IMAGE,
	"jpg":   IMAGE,
	"jpeg":  IMAGE,
	"bmp":   IMAGE,
	"tif":   IMAGE,
	"tiff":  IMAGE,
	"gif":   IMAGE,
	"webp":  IMAGE,
}

// AllowedExtensions holds the file extensions accepted for ingestion.
var AllowedExtensions = func() map[string]struct{} {
	m := make(map[string]struct{}, len(extToType))
	for ext := range extToType {
		m[ext] = struct{}{}
	}
	return m
}()

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedExt reports whether a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// ValidFileType reports whether s is one of the known file-type tags.
func ValidFileType(s string) bool {
	switch FileType(s) {
	case DXF, CUTJOB, PDF, SPREADSHEET, IMAGE, UNKNOWN:
		return true
	}
	return false
}

// DetectFileType maps a filename and processing mode to a file-type tag.
// A non-AUTO mode is a manual override and wins verbatim when it names a
// known tag. AUTO derives the tag from the filename extension alone;
// unrecognized extensions yield UNKNOWN.
func DetectFileType(filename, mode string) FileType {
	if mode != "" && mode != ModeAuto {
		m := strings.ToUpper(strings.TrimSpace(mode))
		if ValidFileType(m) {
			return FileType(m)
		}
		return UNKNOWN
	}
	ext := NormalizeExt(filepath.Ext(filename))
	if t, ok := extToType[ext]; ok {
		return t
	}
	return UNKNOWN
}
