// Command convert runs a full book-to-audiobook conversion from the
// terminal: parse, estimate, confirm, generate, assemble. Interrupting with
// Ctrl-C saves the checkpoint; rerunning the same command resumes.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"audiobook-forge/backend/internal/config"
	"audiobook-forge/backend/internal/document"
	"audiobook-forge/backend/internal/pipeline"
	"audiobook-forge/backend/internal/tts"
)

func main() {
	var (
		inputPath    = flag.String("input", "", "Book file to convert (.epub, .pdf or .txt)")
		optionsPath  = flag.String("config", "", "YAML conversion options file")
		outputPath   = flag.String("output", "", "Output file (default: <book>_<voice>.<format> in the output dir)")
		voice        = flag.String("voice", "", "Voice name override")
		providerName = flag.String("provider", "", "TTS provider override (openai, local, mock)")
		dryRun       = flag.Bool("dry-run", false, "Parse and estimate only, no audio generation")
		listChapters = flag.Bool("list-chapters", false, "Print the chapter list and exit")
		yes          = flag.Bool("yes", false, "Skip the cost confirmation prompt")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: convert -input book.epub [-config options.yaml] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	godotenv.Load()
	log.SetFlags(log.Ldate | log.Ltime)
	cfg := config.Load()

	opts, err := pipeline.LoadOptions(*optionsPath)
	if err != nil {
		log.Fatalf("Options: %v", err)
	}
	if *voice != "" {
		opts.Voice.Name = *voice
	}

	provider, err := pipeline.ProviderFromConfig(cfg, *providerName)
	if err != nil {
		log.Fatalf("Provider: %v", err)
	}

	out := *outputPath
	if out == "" {
		base := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(*inputPath), filepath.Ext(*inputPath)), " ", "_")
		out = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s.%s", base, opts.VoiceSlug(), opts.Output.Format))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Fatalf("Output dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listChapters || *dryRun {
		if err := inspect(ctx, *inputPath, opts, provider, *listChapters); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	orch := &pipeline.Orchestrator{
		Config:   cfg,
		Provider: provider,
		OCR:      pipeline.OCRFromConfig(ctx, cfg),
		OnEvent:  printEvent,
	}
	if !*yes {
		orch.Confirm = confirmPrompt
	}

	result, err := orch.Run(ctx, pipeline.Request{
		InputPath:  *inputPath,
		OutputPath: out,
		Options:    opts,
	})
	switch {
	case errors.Is(err, pipeline.ErrDeclined):
		fmt.Println("[*] Conversion cancelled.")
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Println("\n[!] Interrupted. Progress saved; rerun the same command to resume.")
		os.Exit(130)
	case err != nil:
		log.Fatalf("Conversion failed: %v", err)
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Output: %s\n", result.Result.Path)
	fmt.Printf("Duration: %.1f minutes across %d chapters\n",
		result.Result.Duration/60, len(result.Result.Markers))
	if n := len(result.Failures); n > 0 {
		fmt.Printf("Warning: %d items failed and are missing from the audio:\n", n)
		for _, f := range result.Failures {
			fmt.Printf("  %s: %v\n", f.ItemID, f.Err)
		}
	}
	fmt.Println(strings.Repeat("=", 60))
}

// inspect handles -dry-run and -list-chapters: parse, estimate, print, exit.
func inspect(ctx context.Context, inputPath string, opts pipeline.Options, provider tts.Provider, listOnly bool) error {
	doc, err := document.Parse(ctx, inputPath, document.ParseOptions{
		Filter:   opts.Chapters,
		Cleaning: opts.TextCleaning,
	})
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	fmt.Printf("Title:  %s\n", doc.Title)
	if doc.Author != "" {
		fmt.Printf("Author: %s\n", doc.Author)
	}
	fmt.Printf("Chapters: %d, words: %d\n\n", len(doc.Sections), doc.TotalWords())

	for _, sec := range doc.Sections {
		fmt.Printf("  %-10s %-50s %8d words\n", sec.ID, truncate(sec.Title, 50), sec.WordCount)
	}

	if !listOnly {
		plan := pipeline.BuildPlan(doc, opts)
		est := pipeline.BuildEstimate(plan, provider.Name(), provider.CostPer1kChars(), nil)
		fmt.Println()
		fmt.Print(est.Display())
		fmt.Println("\n[DRY RUN] Stopping before conversion.")
	}
	return nil
}

func printEvent(ev pipeline.Event) {
	switch ev.Stage {
	case pipeline.StageGenerating:
		fmt.Printf("  [%3.0f%%] %s\n", ev.Fraction*100, ev.Message)
	case pipeline.StageFailed:
		fmt.Printf("  [!] %s: %s\n", ev.Message, ev.Error)
	default:
		fmt.Printf("  [*] %s\n", ev.Message)
	}
}

func confirmPrompt(est pipeline.Estimate) bool {
	fmt.Println()
	fmt.Print(est.Display())
	fmt.Print("\nProceed with conversion? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
