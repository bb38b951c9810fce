// Package generation runs the daily pipeline: idempotency check, category
// selection, text generation, persistence, narration and publishing.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/dailyquote/internal/audio"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/publish"
	"github.com/ent0n29/dailyquote/internal/quote"
	"github.com/ent0n29/dailyquote/internal/voice"
)

type CategorySelector interface {
	SelectNext(ctx context.Context, lookbackDays int) (content.Category, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, category content.Category) (quote.Quote, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (voice.Result, error)
}

type AudioPublisher interface {
	Publish(ctx context.Context, data []byte, f audio.Format, t publish.Target) (publish.Published, error)
}

// Stage names, also used as metric labels.
const (
	StageCheckExisting   = "check_existing"
	StageSelectCategory  = "select_category"
	StageGenerateText    = "generate_text"
	StagePersistText     = "persist_text"
	StageSynthesizeVoice = "synthesize_voice"
	StagePublishAudio    = "publish_audio"
	StagePersistAudio    = "persist_audio"
)

// Outcome is the terminal state of one invocation.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomePartial   Outcome = "partial"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Options select what to generate.
type Options struct {
	// Date is the target calendar date. Zero means today in the orchestrator's location.
	Date  time.Time
	Force bool
	// Category pins the category instead of asking the balancer.
	Category content.Category
}

// Result reports a successful or partially successful invocation.
type Result struct {
	Outcome        Outcome
	Record         content.Record
	Category       content.Category
	SkipReason     string
	VoiceGenerated bool
	AudioURL       string
	// VoiceError and VoiceStage are set when narration failed after the text was persisted.
	VoiceError string
	VoiceStage string
}

// Success reports whether the caller should treat the run as successful.
func (r Result) Success() bool {
	return r.Outcome != OutcomeFailed
}

// FatalError aborts an invocation before any text was persisted.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

type Config struct {
	LookbackDays int
	// Timeout bounds a whole invocation; VoiceTimeout bounds synthesis plus publishing.
	Timeout      time.Duration
	VoiceTimeout time.Duration
	Location     *time.Location
}

type Orchestrator struct {
	store     content.Store
	selector  CategorySelector
	text      TextGenerator
	voice     Synthesizer
	publisher AudioPublisher
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	inflight  singleflight.Group
}

func New(
	store content.Store,
	selector CategorySelector,
	text TextGenerator,
	synth Synthesizer,
	publisher AudioPublisher,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		store:     store,
		selector:  selector,
		text:      text,
		voice:     synth,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Today is the current calendar date in the configured location.
func (o *Orchestrator) Today() time.Time {
	return content.Date(o.now().In(o.cfg.Location))
}

// Generate runs the pipeline for opts.Date. It returns an error only when the
// run failed before text was persisted, as *FatalError. Narration failures are
// reported in the Result. Concurrent calls with identical options share one run.
func (o *Orchestrator) Generate(ctx context.Context, opts Options) (Result, error) {
	if opts.Date.IsZero() {
		opts.Date = o.Today()
	}
	opts.Date = content.Date(opts.Date)
	if opts.Category != "" && !opts.Category.Valid() {
		return Result{Outcome: OutcomeFailed}, &FatalError{Stage: StageSelectCategory, Err: fmt.Errorf("unknown category %q", opts.Category)}
	}

	key := fmt.Sprintf("%s|%t|%s", opts.Date.Format(content.DateLayout), opts.Force, opts.Category)
	v, err, shared := o.inflight.Do(key, func() (any, error) {
		return o.run(context.WithoutCancel(ctx), opts)
	})
	if shared {
		o.logger.Debug().Str("date", opts.Date.Format(content.DateLayout)).Msg("joined in-flight generation")
	}
	res, _ := v.(Result)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, opts Options) (res Result, err error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	start := o.now()
	log := o.logger.With().Str("date", opts.Date.Format(content.DateLayout)).Bool("force", opts.Force).Logger()
	defer func() {
		outcome := res.Outcome
		if err != nil {
			outcome = OutcomeFailed
		}
		o.metrics.ObserveGeneration(string(outcome), o.now().Sub(start))
	}()

	if !opts.Force {
		existing, found, err := o.existing(ctx, opts.Date)
		if err != nil {
			log.Error().Err(err).Msg("existing record lookup failed")
			return Result{Outcome: OutcomeFailed}, &FatalError{Stage: StageCheckExisting, Err: err}
		}
		if found {
			log.Info().Str("record_id", existing.ID).Msg("content already exists, skipping")
			return skipped(existing, "Content already exists for "+existing.DateKey()), nil
		}
	}

	category := opts.Category
	if category == "" {
		err := o.stage(StageSelectCategory, func() (err error) {
			category, err = o.selector.SelectNext(ctx, o.cfg.LookbackDays)
			return err
		})
		if err != nil {
			log.Error().Err(err).Msg("category selection failed")
			return Result{Outcome: OutcomeFailed}, &FatalError{Stage: StageSelectCategory, Err: err}
		}
	}
	log = log.With().Str("category", string(category)).Logger()

	var q quote.Quote
	if err := o.stage(StageGenerateText, func() (err error) {
		q, err = o.text.Generate(ctx, category)
		return err
	}); err != nil {
		log.Error().Err(err).Msg("quote generation failed")
		return Result{Outcome: OutcomeFailed, Category: category}, &FatalError{Stage: StageGenerateText, Err: err}
	}

	var record content.Record
	err = o.stage(StagePersistText, func() (err error) {
		record, err = o.store.Create(ctx, content.Draft{
			Content:   q.Content,
			Category:  q.Category,
			Date:      opts.Date,
			Overwrite: opts.Force,
		})
		return err
	})
	if errors.Is(err, content.ErrDuplicateDate) {
		winner, found, lookupErr := o.existing(ctx, opts.Date)
		if lookupErr == nil && found {
			log.Info().Str("record_id", winner.ID).Msg("lost create race, skipping")
			return skipped(winner, "Content was created concurrently for "+winner.DateKey()), nil
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("persisting text failed")
		return Result{Outcome: OutcomeFailed, Category: category}, &FatalError{Stage: StagePersistText, Err: err}
	}
	log = log.With().Str("record_id", record.ID).Logger()
	log.Info().Msg("text persisted")

	// Past this point the text is durable and every failure is reported, not returned.
	res = Result{Outcome: OutcomeGenerated, Record: record, Category: category}
	updated, stage, vErr := o.narrate(ctx, record)
	if vErr != nil {
		log.Warn().Err(vErr).Str("stage", stage).Msg("narration failed, keeping text-only record")
		res.Outcome = OutcomePartial
		res.VoiceError = vErr.Error()
		res.VoiceStage = stage
		return res, nil
	}
	res.Record = updated
	res.VoiceGenerated = true
	if updated.AudioURL != nil {
		res.AudioURL = *updated.AudioURL
	}
	log.Info().Str("audio_url", res.AudioURL).Msg("generation complete")
	return res, nil
}

// narrate synthesizes, publishes and attaches audio to record. It returns the
// stage that failed alongside the error.
func (o *Orchestrator) narrate(ctx context.Context, record content.Record) (content.Record, string, error) {
	vctx := ctx
	if o.cfg.VoiceTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, o.cfg.VoiceTimeout)
		defer cancel()
	}

	var synth voice.Result
	if err := o.stage(StageSynthesizeVoice, func() (err error) {
		synth, err = o.voice.Synthesize(vctx, record.Content)
		return err
	}); err != nil {
		return record, StageSynthesizeVoice, err
	}

	duration := audio.EstimateDuration(synth.Format, len(synth.Audio))
	payload, format, err := audio.Prepare(synth.Audio, synth.Format)
	if err != nil {
		return record, StagePublishAudio, err
	}

	var published publish.Published
	if err := o.stage(StagePublishAudio, func() (err error) {
		published, err = o.publisher.Publish(vctx, payload, format, publish.Target{Date: record.DateCreated, RecordID: record.ID})
		return err
	}); err != nil {
		return record, StagePublishAudio, err
	}

	var updated content.Record
	if err := o.stage(StagePersistAudio, func() (err error) {
		updated, err = o.store.UpdateAudio(ctx, record.ID, published.URL, duration.Seconds())
		return err
	}); err != nil {
		return record, StagePersistAudio, err
	}
	return updated, "", nil
}

func (o *Orchestrator) existing(ctx context.Context, date time.Time) (content.Record, bool, error) {
	var r content.Record
	err := o.stage(StageCheckExisting, func() (err error) {
		r, err = o.store.GetByDate(ctx, date)
		return err
	})
	switch {
	case errors.Is(err, content.ErrNotFound):
		return content.Record{}, false, nil
	case err != nil:
		return content.Record{}, false, err
	}
	return r, true, nil
}

func (o *Orchestrator) stage(name string, fn func() error) error {
	start := o.now()
	err := fn()
	o.metrics.ObserveStage(name, o.now().Sub(start), err)
	return err
}

func skipped(r content.Record, reason string) Result {
	res := Result{
		Outcome:        OutcomeSkipped,
		Record:         r,
		Category:       r.Category,
		SkipReason:     reason,
		VoiceGenerated: r.HasAudio(),
	}
	if r.AudioURL != nil {
		res.AudioURL = *r.AudioURL
	}
	return res
}
