package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"audiobook-forge/backend/internal/audio"
	"audiobook-forge/backend/internal/checkpoint"
	"audiobook-forge/backend/internal/config"
	"audiobook-forge/backend/internal/document"
	"audiobook-forge/backend/internal/tts"
)

// Stage of a conversion job.
type Stage string

const (
	StageParsing              Stage = "parsing"
	StageEstimating           Stage = "estimating"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	StageGenerating           Stage = "generating"
	StageAssembling           Stage = "assembling"
	StageComplete             Stage = "complete"
	StageFailed               Stage = "failed"
	StageCancelled            Stage = "cancelled"
)

// Event is one progress update. Fraction is monotone non-decreasing within a
// run except for the initial jump when a resumed checkpoint pre-fills
// completed items.
type Event struct {
	Stage    Stage         `json:"stage"`
	Fraction float64       `json:"fraction"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Request describes one conversion.
type Request struct {
	InputPath  string
	OutputPath string
	Options    Options
}

// Outcome is what a finished (or partly finished) run produced.
type Outcome struct {
	Document *document.Document
	Estimate Estimate
	Result   audio.Result
	Failures []Failure
	Elapsed  time.Duration
}

// ErrDeclined is returned when the confirmation hook rejects the estimate.
var ErrDeclined = errors.New("conversion declined")

// Orchestrator sequences a conversion: parse, estimate, confirm, generate,
// assemble. Both the CLI and the web job manager drive conversions through
// it; they differ only in the hooks they install.
type Orchestrator struct {
	Config   *config.Config
	Provider tts.Provider
	OCR      document.OCR

	// Confirm, when set, gates priced providers between estimation and
	// generation. A nil hook auto-confirms.
	Confirm func(Estimate) bool

	// OnEvent receives stage and progress updates; nil disables them.
	OnEvent func(Event)
}

func (o *Orchestrator) emit(stage Stage, fraction float64, message string) {
	if o.OnEvent != nil {
		o.OnEvent(Event{Stage: stage, Fraction: fraction, Message: message})
	}
}

// Generation spans most of the run; assembly gets the tail end.
const (
	generateStart = 0.05
	generateEnd   = 0.90
	assembleEnd   = 0.98
)

// Run executes the conversion end to end. A cancelled context yields a
// cancelled event and the context's error; the checkpoint keeps whatever
// completed so the same request resumes later.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{}

	fail := func(err error) (*Outcome, error) {
		if errors.Is(err, context.Canceled) {
			o.emit(StageCancelled, 0, "conversion cancelled, progress saved")
		} else if o.OnEvent != nil {
			o.OnEvent(Event{Stage: StageFailed, Message: "conversion failed", Error: err.Error()})
		}
		out.Elapsed = time.Since(start)
		return out, err
	}

	// Parse.
	o.emit(StageParsing, 0, fmt.Sprintf("parsing %s", filepath.Base(req.InputPath)))
	coverDir := ""
	if req.Options.Output.EmbedCover {
		coverDir = o.jobTempDir(req)
		if err := os.MkdirAll(coverDir, 0755); err != nil {
			return fail(fmt.Errorf("create temp dir: %w", err))
		}
	}
	doc, err := document.Parse(ctx, req.InputPath, document.ParseOptions{
		Filter:   req.Options.Chapters,
		Cleaning: req.Options.TextCleaning,
		CoverDir: coverDir,
		OCR:      o.OCR,
	})
	if err != nil {
		return fail(fmt.Errorf("parse input: %w", err))
	}
	if len(doc.Sections) == 0 {
		return fail(fmt.Errorf("no chapters selected from %s", req.InputPath))
	}
	out.Document = doc
	log.Printf("[Pipeline] Parsed %q: %d chapters, %d words", doc.Title, len(doc.Sections), doc.TotalWords())

	plan := BuildPlan(doc, req.Options)
	total := len(plan.Items)

	// Checkpoint store keyed by input, output and generation settings.
	jobKey := checkpoint.JobKey(req.InputPath, req.OutputPath, req.Options.Fingerprint())
	store, err := o.openStore(jobKey)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	state, err := store.Initialize(total)
	if err != nil {
		return fail(fmt.Errorf("load checkpoint: %w", err))
	}
	if n := len(state.Completed); n > 0 {
		log.Printf("[Pipeline] Resuming: %d/%d items already complete", n, total)
		o.emit(StageGenerating, genFraction(n, total), fmt.Sprintf("resuming, %d/%d items cached", n, total))
	}

	// Estimate.
	o.emit(StageEstimating, generateStart, "estimating cost")
	est := BuildEstimate(plan, o.Provider.Name(), o.Provider.CostPer1kChars(), store.IsDone)
	out.Estimate = est

	if o.Confirm != nil && est.RatePer1k > 0 {
		o.emit(StageAwaitingConfirmation, generateStart, fmt.Sprintf("estimated cost $%.2f", est.CostUSD))
		if !o.Confirm(est) {
			o.emit(StageCancelled, generateStart, "conversion declined")
			out.Elapsed = time.Since(start)
			return out, ErrDeclined
		}
	}

	// Generate.
	o.emit(StageGenerating, generateStart, fmt.Sprintf("generating %d items", total))
	driver := &Driver{
		Provider:      o.Provider,
		Store:         store,
		Retry:         DefaultRetryPolicy(req.Options.Conversion.MaxAttempts),
		TempDir:       o.jobTempDir(req),
		Voice:         o.voiceParams(req.Options),
		MinChunkChars: req.Options.Conversion.MinChunkChars,
		OnProgress: func(settled, totalItems int, itemID, kind string) {
			o.emit(StageGenerating, genFraction(settled, totalItems),
				fmt.Sprintf("%s %s (%d/%d)", kind, itemID, settled, totalItems))
		},
	}
	dres, err := driver.Run(ctx, plan)
	out.Failures = dres.Failures
	if err != nil {
		return fail(err)
	}
	if dres.Completed+dres.Cached == 0 {
		return fail(fmt.Errorf("all %d items failed, nothing to assemble", total))
	}
	if len(dres.Failures) > 0 {
		log.Printf("[Pipeline] %d of %d items failed, assembling the rest", len(dres.Failures), total)
	}

	// Assemble.
	o.emit(StageAssembling, generateEnd, "assembling audiobook")
	muxer, err := audio.NewMuxer(o.Config.FFmpegCmd, req.Options.Output.Bitrate)
	if err != nil {
		return fail(err)
	}
	assembler := &audio.Assembler{
		TempDir:      o.jobTempDir(req),
		Muxer:        muxer,
		ChapterPause: req.Options.Conversion.ChapterPause,
	}
	meta := audio.Metadata{
		Title:     doc.Title,
		Author:    doc.Author,
		Album:     doc.Title,
		Genre:     "Audiobook",
		Year:      fmt.Sprint(time.Now().Year()),
		CoverPath: doc.CoverPath,
	}
	result, err := assembler.Assemble(ctx, plan.Groups, store.Output, req.OutputPath, meta)
	if err != nil {
		return fail(fmt.Errorf("assemble: %w", err))
	}
	out.Result = result

	// A clean full run no longer needs its checkpoint or chunk audio. With
	// failures, both stay so a rerun regenerates only the failed items.
	if len(dres.Failures) == 0 {
		if err := store.MarkJobComplete(); err != nil {
			log.Printf("[Pipeline] Marking job complete: %v", err)
		}
		if err := store.Cleanup(); err != nil {
			log.Printf("[Pipeline] Checkpoint cleanup: %v", err)
		}
		os.RemoveAll(o.jobTempDir(req))
	}

	out.Elapsed = time.Since(start)
	final := Event{
		Stage:    StageComplete,
		Fraction: 1.0,
		Message:  fmt.Sprintf("wrote %s (%.1f min of audio)", result.Path, result.Duration/60),
	}
	if len(dres.Failures) > 0 {
		final.Message = fmt.Sprintf("wrote %s, %d items failed", result.Path, len(dres.Failures))
		final.Failures = FailureDetails(dres.Failures)
	}
	if o.OnEvent != nil {
		o.OnEvent(final)
	}
	return out, nil
}

func (o *Orchestrator) openStore(jobKey string) (checkpoint.Store, error) {
	if err := os.MkdirAll(o.Config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if o.Config.Checkpoints == "sqlite" {
		return checkpoint.OpenSQLite(o.Config.DataDir, jobKey)
	}
	return checkpoint.NewFileStore(o.Config.DataDir, jobKey), nil
}

func (o *Orchestrator) voiceParams(opts Options) tts.VoiceParams {
	return tts.VoiceParams{
		Voice:        opts.Voice.Name,
		Speed:        opts.Voice.Speed,
		Instructions: opts.Voice.Instruct,
	}
}

func (o *Orchestrator) jobTempDir(req Request) string {
	key := checkpoint.JobKey(req.InputPath, req.OutputPath, req.Options.Fingerprint())
	return filepath.Join(o.Config.TempDir, key)
}

func genFraction(settled, total int) float64 {
	if total == 0 {
		return generateEnd
	}
	return generateStart + (generateEnd-generateStart)*float64(settled)/float64(total)
}
