// Command cutflow-batch walks a directory and runs every supported file
// through the ingestion pipeline, without the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/extract"
	"github.com/beerberidie/cutflow/internal/pipeline"
	"github.com/beerberidie/cutflow/internal/repository"
	"github.com/beerberidie/cutflow/internal/storage"
	"github.com/beerberidie/cutflow/internal/watch"
	"github.com/beerberidie/cutflow/internal/webhook"
)

type dirStats struct {
	Scanned   int
	Matched   int
	Succeeded int
	Failed    int
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory to ingest (required)")
		client     = flag.String("client", "", "client code hint, e.g. CL-0042")
		project    = flag.String("project", "", "project code hint")
		skipHidden = flag.Bool("skip-hidden", true, "skip dotfiles and dot-directories")
		workers    = flag.Int("workers", 4, "concurrent ingestions")
		watchMode  = flag.Bool("watch", false, "keep running and ingest files as they appear")
		debounce   = flag.Duration("debounce", 2*time.Second, "settle time before ingesting a changed file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "error: --dir is required")
		os.Exit(1)
	}

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening database: %v\n", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	repo := repository.NewIngestRepository(db, logger)

	store, err := storage.NewManager(cfg.Storage.Root, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: initializing storage: %v\n", err)
		os.Exit(1)
	}

	whStore, err := webhook.OpenStore(cfg.Webhook.QueueDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening webhook queue store: %v\n", err)
		os.Exit(1)
	}
	defer whStore.Close()

	notifier := webhook.NewNotifier(cfg.Webhook, whStore, logger)

	ocr := extract.NewOCREngine(extract.OCRConfig{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Language,
		TessdataDir: cfg.OCR.TessdataDir,
	}, logger)

	proc := pipeline.NewProcessor(logger, extract.NewRegistry(ocr), store, repo, notifier, cfg.Server.MaxFileMB, *workers)

	if *watchMode {
		if err := watchDirectory(ctx, proc, *dir, *client, *project, *debounce); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	stats, err := ingestDirectory(ctx, proc, *dir, *client, *project, *skipHidden, *workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("scanned %d, matched %d, succeeded %d, failed %d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}

func ingestDirectory(ctx context.Context, proc *pipeline.Processor, root, client, project string, skipHidden bool, workers int) (dirStats, error) {
	var stats dirStats
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if skipHidden && isHidden(d.Name()) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if constants.DetectFileType(path, constants.ModeAuto) == constants.UNKNOWN {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return stats, err
	}

	results := make([]pipeline.UploadResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				results[i] = pipeline.UploadResult{OriginalFilename: path, Error: err.Error()}
				return nil
			}
			results[i] = proc.ProcessUpload(gctx, pipeline.UploadRequest{
				Filename:    filepath.Base(path),
				Data:        data,
				ClientCode:  client,
				ProjectCode: project,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i, res := range results {
		if res.Success {
			stats.Succeeded++
			fmt.Printf("ok   %s -> %s\n", paths[i], res.StoredFilename)
		} else {
			stats.Failed++
			fmt.Printf("fail %s: %s\n", paths[i], res.Error)
		}
	}
	return stats, nil
}

// watchDirectory ingests files as the watcher reports them, until
// interrupted.
func watchDirectory(ctx context.Context, proc *pipeline.Processor, root, client, project string, debounce time.Duration) error {
	events, errs, err := watch.Start(ctx, watch.Config{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    debounce,
	}, slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("watching %s\n", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
			}
		case path, ok := <-events:
			if !ok {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Printf("fail %s: %v\n", path, err)
				continue
			}
			res := proc.ProcessUpload(ctx, pipeline.UploadRequest{
				Filename:    filepath.Base(path),
				Data:        data,
				ClientCode:  client,
				ProjectCode: project,
			})
			if res.Success {
				fmt.Printf("ok   %s -> %s\n", path, res.StoredFilename)
			} else {
				fmt.Printf("fail %s: %s\n", path, res.Error)
			}
		}
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
