// Package main is the Miru CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/cli"
	"github.com/hyperjump/miru/internal/collection"
	"github.com/hyperjump/miru/internal/config"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/keyword"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/refine"
	"github.com/hyperjump/miru/internal/retrieval"
	"github.com/hyperjump/miru/internal/server"
	"github.com/hyperjump/miru/internal/session"
	"github.com/hyperjump/miru/internal/storage"
	"github.com/hyperjump/miru/internal/vector"
	"github.com/hyperjump/miru/internal/watcher"
	"github.com/hyperjump/miru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/miru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "miru server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("miru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: miru <command> [flags]

Commands:
  server    start the retrieval API server
  search    run a text search against a running server
  ingest    load a JSON-lines batch file of items
  status    show corpus and server status
  version   print version
  help      show this help

Run "miru <command> -h" for command flags.`)
}

// Components holds the initialized application components.
type Components struct {
	Store       storage.Store
	Embedder    embedding.Embedder
	Collection  *collection.Collection
	Meta        *keyword.MetadataIndex
	Sessions    *session.Store
	Coordinator *retrieval.Coordinator
}

// Close releases component resources.
func (c *Components) Close() {
	if c.Meta != nil {
		_ = c.Meta.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	switch cfg.Oracle.Provider {
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Oracle.Dimensions)
	default:
		remote, err := embedding.NewRemoteEmbedder(
			cfg.Oracle.Endpoint,
			cfg.Oracle.Dimensions,
			time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize embedding oracle: %w", err)
		}
		embedder = remote
	}
	if cfg.Oracle.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Oracle.CacheSize)
	}

	index, err := vector.NewFlatIndex(cfg.Oracle.Dimensions)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	coll, err := collection.New(cfg.Oracle.Dimensions, index)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize collection: %w", err)
	}
	if err := coll.Restore(context.Background(), cfg.Storage.VectorIndexPath, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to restore collection snapshot: %w", err)
	}
	logger.Info("collection restored", zap.Int("items", coll.TotalCount()), zap.Int("dimensions", coll.Dimensions()))

	meta, err := keyword.NewMetadataIndex(cfg.Storage.MetadataIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize metadata index: %w", err)
	}
	// Re-indexing restored items is an upsert, so this heals a metadata
	// index that is behind the snapshot.
	if items := coll.Items(); len(items) > 0 {
		if err := meta.IndexBatch(context.Background(), items); err != nil {
			logger.Warn("metadata reindex failed", zap.Error(err))
		}
	}

	sessions := session.NewStore(logger)
	coordinator := retrieval.NewCoordinator(
		embedder,
		coll,
		sessions,
		meta,
		store,
		cfg.Storage.VectorIndexPath,
		refine.NewRocchio(*cfg.Rocchio.Alpha, *cfg.Rocchio.Beta, *cfg.Rocchio.Gamma),
		refine.NewComposer(
			*cfg.Compose.AdditiveLambda,
			*cfg.Compose.InterpolationAlpha,
			*cfg.Compose.ResidualStrength,
			*cfg.Compose.AttentionTemperature,
		),
		retrieval.Config{
			DefaultTopK: cfg.Search.DefaultTopK,
			MaxTopK:     cfg.Search.MaxTopK,
			PseudoTopM:  cfg.Search.PseudoTopM,
			SampleSize:  cfg.Search.SampleSize,
		},
		logger,
	)

	return &Components{
		Store:       store,
		Embedder:    embedder,
		Collection:  coll,
		Meta:        meta,
		Sessions:    sessions,
		Coordinator: coordinator,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	components.Sessions.StartReaper(appCtx,
		time.Duration(cfg.Session.ReapIntervalMinutes)*time.Minute,
		time.Duration(cfg.Session.MaxAgeHours)*time.Hour,
	)

	if cfg.Ingest.WatchDir != "" {
		coordinator := components.Coordinator
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(cfg.Ingest.WatchDir, func(path string) {
			resp, err := coordinator.IngestBatchFile(context.Background(), path)
			if err != nil {
				logger.Warn("batch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("batch ingested", zap.String("path", path), zap.Int("items", resp.Ingested))
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove processed batch file", zap.String("path", path), zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(appCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Coordinator, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	appCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: miru search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Pass --session to continue refining an existing session; the response
carries the session id to reuse.

Examples:
  miru search navy wool coat
  miru search --top-k 20 "summer dress"
  miru search --session 4f2c... lighter color
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	sessionID := fs.String("session", "", "session id to continue")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	req := &models.TextSearchRequest{Query: queryStr, TopK: *topK, SessionID: *sessionID}
	response, err := searchViaHTTP(*serverURL, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.TextSearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search/text", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// readBatchFile parses a JSON-lines batch file into an ingest request.
// Malformed lines are reported to stderr and skipped.
func readBatchFile(path string) (*models.IngestRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var req models.IngestRequest
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item models.ItemInput
		if err := json.Unmarshal(line, &item); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping malformed line %d: %v\n", lineNo, err)
			continue
		}
		req.Items = append(req.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("no items in %s", path)
	}
	return &req, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: miru ingest [flags] <batch-file.jsonl>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	format := cli.OutputText
	if *outputFormat == "json" {
		format = cli.OutputJSON
	}

	req, err := readBatchFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read batch file: %v\n", err)
		os.Exit(1)
	}
	resp, err := ingestViaHTTP(*serverURL, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteIngestResult(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func ingestViaHTTP(serverURL string, req *models.IngestRequest) (*models.IngestResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/items", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// statusResponse is the shape of GET /status.
type statusResponse struct {
	TotalItems     int                    `json:"total_items"`
	Sessions       int                    `json:"sessions"`
	VectorLength   int                    `json:"vector_length"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_items:    %d   # items in the corpus\n", status.TotalItems)
		fmt.Printf("sessions:       %d   # live search sessions\n", status.Sessions)
		fmt.Printf("vector_length:  %d   # embedding dimensionality\n", status.VectorLength)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage:     %d bytes\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
