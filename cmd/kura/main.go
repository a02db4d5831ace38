// Package main is the Kura CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/rag"
	"github.com/hyperjump/kura/internal/server"
	"github.com/hyperjump/kura/pkg/utils"
)

var version = "dev"

// loadConfig loads config from path when the file exists, else returns the
// defaults. The vectorizer API key falls back to KURA_API_KEY from the
// environment (or a .env file) when the config does not set one.
func loadConfig(path string) (*config.Config, error) {
	_ = godotenv.Load()
	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if cfg.Vectorizer.APIKey == "" {
		cfg.Vectorizer.APIKey = os.Getenv("KURA_API_KEY")
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "add":
		runAdd()
	case "remove-kb":
		runRemoveKB()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kura version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Kura - knowledge base vector search service

Usage:
  kura server     [-config path] [-debug]        run the HTTP API server
  kura search     [-server url] [-kb name] [-k n] [-threshold t] <query>
  kura add        [-server url] [-kb name] [-id id] [-source src] <content>
  kura remove-kb  [-server url] <name>
  kura status     [-server url]
  kura version
`)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "kura.yaml", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	storeDir := fs.String("store", "", "override the knowledge base store directory")
	port := fs.Int("port", 0, "override the listen port")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	overrides := &config.Config{Debug: *debug}
	overrides.Store.Dir = *storeDir
	overrides.Server.Port = *port
	cfg = config.Merge(cfg, overrides)
	debugMode := cfg.Debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	embedder := embedding.NewOpenAIEmbedder(
		cfg.Vectorizer.APIURL,
		cfg.Vectorizer.APIKey,
		cfg.Vectorizer.Model,
		cfg.Vectorizer.Dimensions,
		time.Duration(cfg.Vectorizer.TimeoutSeconds)*time.Second,
		logger,
	)
	service, err := rag.New(cfg, embedder, logger)
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}

	srv := server.NewServer(service, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := service.Shutdown(); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	kb := fs.String("kb", models.DefaultKnowledgeBase, "knowledge base name")
	k := fs.Int("k", 10, "number of results")
	threshold := fs.Float64("threshold", 0, "minimum similarity score")
	_ = fs.Parse(os.Args[2:])

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: kura search [flags] <query>")
		os.Exit(1)
	}

	var resp server.SearchResponse
	err := postJSON(*serverURL+"/api/v1/search", server.SearchRequest{
		Query:         query,
		KnowledgeBase: *kb,
		K:             *k,
		Threshold:     *threshold,
	}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. [%.3f] %s\n   %s\n", i+1, r.Score, r.ID, firstLine(r.Content))
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	kb := fs.String("kb", models.DefaultKnowledgeBase, "knowledge base name")
	id := fs.String("id", "", "document id (generated when empty)")
	source := fs.String("source", "", "source label")
	_ = fs.Parse(os.Args[2:])

	content := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if content == "" {
		fmt.Fprintln(os.Stderr, "Usage: kura add [flags] <content>")
		os.Exit(1)
	}

	var resp map[string]interface{}
	err := postJSON(*serverURL+"/api/v1/documents", models.DocumentInput{
		ID:            *id,
		Content:       content,
		KnowledgeBase: *kb,
		Source:        *source,
	}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added to %s.\n", *kb)
}

func runRemoveKB() {
	fs := flag.NewFlagSet("remove-kb", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kura remove-kb [flags] <name>")
		os.Exit(1)
	}
	name := fs.Arg(0)
	req, err := http.NewRequest(http.MethodDelete,
		*serverURL+"/api/v1/knowledge-bases/"+url.PathEscape(name), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
		os.Exit(1)
	}
	if err := doJSON(req, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s.\n", name)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	req, err := http.NewRequest(http.MethodGet, *serverURL+"/api/v1/status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var status models.Status
	if err := doJSON(req, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Searches: %d (avg %.1f ms)\n", status.SearchCount, status.AvgLatencyMS)
	fmt.Printf("Cache: %d entries, hit rate %.0f%%\n", status.CacheSize, status.CacheHitRate*100)
	fmt.Printf("Disk usage: %d bytes\n", status.DiskUsageBytes)
	for name, count := range status.KnowledgeBases {
		fmt.Printf("  %s: %d documents\n", name, count)
	}
}

func postJSON(endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func doJSON(req *http.Request, out interface{}) error {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
