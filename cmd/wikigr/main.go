// Command wikigr builds and queries knowledge packs.
//
// Build a pack from seed articles:
//
//	go run ./cmd/wikigr expand \
//	  --pack ./packs/computing \
//	  --seeds ./seeds.txt \
//	  --target 100 \
//	  --chat-provider ollama --chat-model llama3.1:8b \
//	  --embed-provider ollama --embed-model nomic-embed-text --embed-dim 768
//
// Ask a question over an existing pack:
//
//	go run ./cmd/wikigr query \
//	  --pack ./packs/computing \
//	  "Who formalized the concept of computability?"
//
// Inspect a pack:
//
//	go run ./cmd/wikigr stats --pack ./packs/computing
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wikigr/wikigr"
	"github.com/wikigr/wikigr/expand"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "expand":
		runExpand(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wikigr <expand|query|stats> [flags]")
	os.Exit(2)
}

// commonFlags registers the flags shared by every subcommand and returns
// a builder that assembles the config after parsing.
func commonFlags(fs *flag.FlagSet) func() wikigr.Config {
	var (
		packDir       = fs.String("pack", "", "Pack directory (required)")
		src           = fs.String("source", "wikipedia", "Article source: wikipedia, html")
		srcURL        = fs.String("source-url", "", "Source base URL override (api.php URL or site root)")
		srcRPM        = fs.Int("source-rpm", 30, "Source request rate limit per minute")
		chatProvider  = fs.String("chat-provider", "ollama", "Chat LLM provider")
		chatModel     = fs.String("chat-model", "llama3.1:8b", "Chat model name")
		chatBaseURL   = fs.String("chat-base-url", "", "Chat provider base URL override")
		chatAPIKey    = fs.String("chat-api-key", "", "Chat provider API key (default: from env)")
		embedProvider = fs.String("embed-provider", "ollama", "Embedding provider")
		embedModel    = fs.String("embed-model", "nomic-embed-text", "Embedding model name")
		embedBaseURL  = fs.String("embed-base-url", "", "Embedding provider base URL override")
		embedAPIKey   = fs.String("embed-api-key", "", "Embedding provider API key (default: from env)")
		embedDim      = fs.Int("embed-dim", 768, "Embedding dimension")
		verbose       = fs.Bool("v", false, "Verbose logging")
	)
	return func() wikigr.Config {
		level := slog.LevelWarn
		if *verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if *packDir == "" {
			log.Fatal("--pack is required")
		}
		cfg := wikigr.DefaultConfig()
		cfg.PackDir = *packDir
		cfg.Source = *src
		cfg.SourceBaseURL = *srcURL
		cfg.SourceRPM = *srcRPM
		cfg.EmbeddingDim = *embedDim
		cfg.Chat.Provider = *chatProvider
		cfg.Chat.Model = *chatModel
		cfg.Chat.BaseURL = *chatBaseURL
		cfg.Chat.APIKey = resolveKey(*chatAPIKey, *chatProvider)
		cfg.Embedding.Provider = *embedProvider
		cfg.Embedding.Model = *embedModel
		cfg.Embedding.BaseURL = *embedBaseURL
		cfg.Embedding.APIKey = resolveKey(*embedAPIKey, *embedProvider)
		return cfg
	}
}

// resolveKey resolves an API key from the flag or well-known env vars.
func resolveKey(flagVal, provider string) string {
	if flagVal != "" {
		return flagVal
	}
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "xai":
		return os.Getenv("XAI_API_KEY")
	}
	return ""
}

func runExpand(args []string) {
	fs := flag.NewFlagSet("expand", flag.ExitOnError)
	build := commonFlags(fs)
	var (
		seedFile = fs.String("seeds", "", "Path to seed file, one title per line")
		target   = fs.Int("target", 100, "Number of articles to process")
		maxDepth = fs.Int("max-depth", 2, "Maximum link depth from the seeds")
		workers  = fs.Int("workers", 4, "Concurrent article workers")
	)
	fs.Parse(args)
	cfg := build()
	cfg.Expansion.TargetArticles = *target
	cfg.Expansion.MaxDepth = *maxDepth
	cfg.Expansion.WorkerCount = *workers

	seeds := fs.Args()
	if *seedFile != "" {
		fromFile, err := wikigr.LoadSeeds(*seedFile)
		if err != nil {
			log.Fatalf("loading seeds: %v", err)
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		log.Fatal("no seeds: pass titles as arguments or --seeds file")
	}

	pack := openOrCreate(cfg)
	defer pack.Close()

	pack.SetProgressFunc(func(p expand.Progress) {
		fmt.Fprintf(os.Stderr, "\rprocessed %d/%d  discovered %d  failed %d",
			p.Processed, p.Target, p.Discovered, p.Failed)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pack.Expand(ctx, seeds); err != nil {
		fmt.Fprintln(os.Stderr)
		log.Fatalf("expand: %v", err)
	}
	fmt.Fprintln(os.Stderr)

	stats, err := pack.Stats(context.Background())
	if err != nil {
		log.Fatalf("reading stats: %v", err)
	}
	fmt.Printf("pack: %d articles, %d sections, %d entities, %d relationships\n",
		stats.Processed, stats.Sections, stats.Entities, stats.Relations)
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	build := commonFlags(fs)
	numDocs := fs.Int("num-docs", 5, "Number of source articles to retrieve")
	fs.Parse(args)
	cfg := build()
	cfg.Retrieval.NumDocs = *numDocs

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		log.Fatal("no question given")
	}

	pack, err := wikigr.Open(cfg)
	if err != nil {
		log.Fatalf("opening pack: %v", err)
	}
	defer pack.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pack.Query(ctx, question)
	if err != nil {
		log.Fatalf("query: %v", err)
	}

	fmt.Println(res.Answer)
	if len(res.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(res.Sources, ", "))
	}
	fmt.Fprintf(os.Stderr, "\n[%s, %d tokens]\n", res.QueryType, res.TotalTokens)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	build := commonFlags(fs)
	fs.Parse(args)
	cfg := build()

	pack, err := wikigr.Open(cfg)
	if err != nil {
		log.Fatalf("opening pack: %v", err)
	}
	defer pack.Close()

	meta := pack.Metadata()
	stats, err := pack.Stats(context.Background())
	if err != nil {
		log.Fatalf("reading stats: %v", err)
	}

	fmt.Printf("pack %s (v%d)\n", meta.PackID, meta.Version)
	fmt.Printf("  embedding       %s (%d dims)\n", meta.EmbeddingModel, meta.EmbeddingDim)
	fmt.Printf("  articles        %d processed, %d failed\n", stats.Processed, stats.Failed)
	fmt.Printf("  queue           %d discovered, %d claimed, %d loaded\n",
		stats.Discovered, stats.Claimed, stats.Loaded)
	fmt.Printf("  sections        %d\n", stats.Sections)
	fmt.Printf("  entities        %d\n", stats.Entities)
	fmt.Printf("  relationships   %d\n", stats.Relations)
}

// openOrCreate opens an existing pack or initializes a new one.
func openOrCreate(cfg wikigr.Config) *wikigr.Pack {
	pack, err := wikigr.Open(cfg)
	if err == nil {
		return pack
	}
	pack, createErr := wikigr.Create(cfg)
	if createErr != nil {
		log.Fatalf("opening pack: %v (create also failed: %v)", err, createErr)
	}
	return pack
}
