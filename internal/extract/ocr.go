package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10), // cap at 8KB
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
			"stderr_bytes", errb.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// OCRConfig selects the tesseract binary and language.
type OCRConfig struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
}

// OCREngine shells out to tesseract for text recognition on raster images.
type OCREngine struct {
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewOCREngine(cfg OCRConfig, logger *slog.Logger) *OCREngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &OCREngine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// SetRunner swaps the command runner; tests use this to avoid spawning
// real processes.
func (e *OCREngine) SetRunner(r Runner) { e.runner = r }

// Available reports whether the tesseract binary can be resolved.
func (e *OCREngine) Available() bool {
	if filepath.IsAbs(e.cfg.Tesseract) {
		_, err := os.Stat(e.cfg.Tesseract)
		return err == nil
	}
	_, err := exec.LookPath(e.cfg.Tesseract)
	return err == nil
}

var reBoxNoise = regexp.MustCompile(`[|_]{3,}`)

// Recognize writes the image bytes to a scratch file and runs
// tesseract <file> stdout -l <lang> over it.
func (e *OCREngine) Recognize(ctx context.Context, data []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "cutflow-ocr-*."+ext)
	if err != nil {
		return "", fmt.Errorf("ocr scratch file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("ocr scratch file: %w", err)
	}
	f.Close()

	args := []string{f.Name(), "stdout", "-l", e.cfg.Lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}

	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return strings.TrimSpace(txt), nil
}
