// Command ingest loads local PDF files through the same ingest pipeline the
// server uses and reports how many pages were processed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/config"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document/extractor"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	noColor := fs.Bool("no-color", false, "disable colored output")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ingest [-config file] file.pdf...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *noColor {
		color.NoColor = true
	}
	failed := color.New(color.FgRed)

	cfg, err := config.Load(*configPath)
	if err != nil {
		failed.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		failed.Fprintf(stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	uploads := make([]document.Upload, 0, fs.NArg())
	for _, path := range fs.Args() {
		upload, err := document.UploadFromPath(path)
		if err != nil {
			fmt.Fprintln(stdout, document.TotalMessage(0))
			failed.Fprintf(stderr, "ingest failed: %v\n", err)
			return 1
		}
		uploads = append(uploads, upload)
	}

	loader := extractor.NewPDFLoader(
		extractor.WithValidation(cfg.PDF.Validate),
		extractor.WithLogger(logger),
	)
	ingester := document.NewIngester(loader,
		document.WithTempDir(cfg.Upload.TempDir),
		document.WithMaxFileSize(cfg.Upload.MaxFileSize),
		document.WithMaxFiles(cfg.Upload.MaxFiles),
		document.WithWorkers(cfg.Upload.Workers),
		document.WithChunkSize(cfg.Upload.ChunkSize),
		document.WithLogger(logger),
	)

	result, err := ingester.IngestBatch(ctx, uploads)
	total := 0
	if result != nil {
		total = len(result.Pages)
	}
	fmt.Fprintln(stdout, document.TotalMessage(total))

	if err != nil {
		failed.Fprintf(stderr, "ingest failed: %v\n", err)
		return 1
	}
	return 0
}
