package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/chunker"
	"github.com/dgallion1/threadgest/internal/config"
	"github.com/dgallion1/threadgest/internal/export"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/pipeline"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape one thread and print a summary",
	Long: `Fetch every page of a thread, extract its posts and batch them.

Examples:
  threadgest scrape --url https://forum.example.com/t/42 --pages 12
  threadgest scrape --url https://forum.example.com/t/42 --dedup --out posts.csv
  threadgest scrape --url https://forum.example.com/t/42 --analyze --out digest.docx`,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.String("url", "", "base URL of the thread")
	f.String("pages", "discover", `page count, or "discover" to read it from the first page`)
	f.Int("concurrency", 0, "maximum in-flight requests (default CONCURRENCY_LIMIT)")
	f.Int("chunk-size", 0, "posts per chunk (default CHUNK_SIZE)")
	f.Bool("dedup", false, "drop repeated posts")
	f.Bool("analyze", false, "send chunks to the configured LLM")
	f.String("profile", "", "selector profile from SELECTORS_FILE")
	f.String("page-pattern", "", "page URL pattern with {base} and {page} (default PAGE_URL_PATTERN)")
	f.String("out", "", "write posts to a .csv, .txt, .docx or .html file")
	_ = scrapeCmd.MarkFlagRequired("url")
	_ = scrapeCmd.RegisterFlagCompletionFunc("profile", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		profiles, err := loadProfiles(config.Load())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return profileNames(profiles), cobra.ShellCompDirectiveNoFileComp
	})
}

func runScrape(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	url, _ := flags.GetString("url")
	pagesArg, _ := flags.GetString("pages")
	concurrency, _ := flags.GetInt("concurrency")
	chunkSize, _ := flags.GetInt("chunk-size")
	dedup, _ := flags.GetBool("dedup")
	doAnalyze, _ := flags.GetBool("analyze")
	profile, _ := flags.GetString("profile")
	pattern, _ := flags.GetString("page-pattern")
	out, _ := flags.GetString("out")

	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel()}))

	pages, err := pipeline.ParsePages(pagesArg, cfg.MaxPages)
	if err != nil {
		return err
	}
	profiles, err := loadProfiles(cfg)
	if err != nil {
		return err
	}
	if profile == "" {
		profile = cfg.SelectorProfile
	}
	sel, err := profiles.Get(profile)
	if err != nil {
		return err
	}
	if concurrency == 0 {
		concurrency = cfg.ConcurrencyLimit
	}
	if pattern == "" {
		pattern = cfg.PagePattern
	}
	var format export.Format
	if out != "" {
		if format, err = export.ParseFormat(filepath.Ext(out)); err != nil {
			return err
		}
	}

	var analyzer *analyze.Analyzer
	if doAnalyze {
		llm, err := newLLM(cfg)
		if err != nil {
			return err
		}
		if llm == nil {
			return fmt.Errorf("--analyze needs an API key for provider %q", cfg.LLMProvider)
		}
		defer closeLLM(llm)
		analyzer = analyze.NewAnalyzer(llm, cfg.AnalyzeConcurrency, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := newFetcher(cfg, log)
	defer f.Close()
	scraper := pipeline.NewScraper(f, nil, log)

	runCfg := pipeline.RunConfig{
		BaseURL:     url,
		Pages:       pages,
		Concurrency: concurrency,
		Selectors:   sel,
		PagePattern: pattern,
		Dedup:       dedup,
		MaxPages:    cfg.MaxPages,
	}
	stderr := cmd.ErrOrStderr()
	result, err := scraper.Run(ctx, runCfg, func(p pipeline.Progress) {
		status := "ok"
		if !p.OK {
			status = "failed"
		}
		fmt.Fprintf(stderr, "page %d %s (%d/%d), %d posts\n", p.Page, status, p.Done, p.Total, p.Posts)
	})
	if err != nil {
		return err
	}

	chunkCfg := chunkConfig(cfg)
	if chunkSize > 0 {
		chunkCfg.Size = chunkSize
	}
	chunks := chunker.Batch(result.Posts, chunkCfg)

	var report *analyze.Report
	if analyzer != nil && len(chunks) > 0 {
		report = analyzer.Analyze(ctx, chunks, func(done, total int) {
			fmt.Fprintf(stderr, "analyzed chunk %d/%d\n", done, total)
		})
	}

	stdout := cmd.OutOrStdout()
	renderSummary(stdout, runCfg, result, len(chunks), report)
	if report != nil && out == "" && report.Summary != "" {
		fmt.Fprintf(stdout, "\n%s\n", report.Summary)
	}

	if out != "" {
		doc := export.Document{
			URL:        url,
			Posts:      result.Posts,
			Report:     report,
			Failed:     result.FailedPages(),
			Duplicates: result.Duplicates,
		}
		if err := writeExport(out, format, doc); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", out)
	}
	return nil
}

func writeExport(path string, format export.Format, doc export.Document) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.Write(file, format, doc); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func renderSummary(w io.Writer, cfg pipeline.RunConfig, r *pipeline.Result, chunks int, report *analyze.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})

	failed := "none"
	if fp := r.FailedPages(); len(fp) > 0 {
		parts := make([]string, len(fp))
		for i, p := range fp {
			parts[i] = fmt.Sprint(p)
		}
		failed = strings.Join(parts, ", ")
	}

	t.AppendRows([]table.Row{
		{"URL", cfg.BaseURL},
		{"Pages", r.TotalPages},
		{"Failed pages", failed},
		{"Posts", len(r.Posts)},
		{"Duplicates removed", r.Duplicates},
		{"Chunks", chunks},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	})
	if report != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Model", report.Model},
			{"Chunks analyzed", len(report.Succeeded())},
			{"Analysis errors", len(report.Errors())},
			{"Flagged posts", report.FlaggedPosts},
		})
	}
	t.Render()
}

// profileNames lists "default" first, then the file's other profiles sorted.
func profileNames(p parser.Profiles) []string {
	var names []string
	for name := range p {
		if name != "default" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return append([]string{"default"}, names...)
}
