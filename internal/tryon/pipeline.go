package tryon

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
	"github.com/Snogger/ai-hairstyle-plugin/internal/prompt"
)

// Describer produces a free-text description of an image.
type Describer interface {
	Describe(ctx context.Context, image gemini.Blob, instruction string) (string, error)
}

// Synthesizer produces image bytes from a generation prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) ([]byte, error)
}

// ReferenceSource resolves a style's stored reference images. Returns
// ErrStyleNotFound for unknown or disabled styles.
type ReferenceSource interface {
	References(ctx context.Context, styleID int64) (ReferenceSet, error)
}

// Ledger records usage exactly once per orchestration attempt.
type Ledger interface {
	RecordGeneration(ctx context.Context, styleID int64, apiCalls int) error
}

// Store keeps generated images addressable by key.
type Store interface {
	Put(ctx context.Context, key, mimeType string, r io.Reader) error
}

type Options struct {
	Describer   Describer
	Synthesizer Synthesizer
	References  ReferenceSource
	Ledger      Ledger
	Store       Store
	Logger      *slog.Logger

	// DescribeCacheTTL bounds how long describe results are reused for
	// identical image+instruction pairs. Zero disables the cache.
	DescribeCacheTTL time.Duration

	// CallTimeout caps each individual describe/synthesize call, on top of
	// the request-wide deadline. Zero leaves only the request deadline.
	CallTimeout time.Duration
}

type Pipeline struct {
	describer   Describer
	synthesizer Synthesizer
	references  ReferenceSource
	ledger      Ledger
	store       Store
	logger      *slog.Logger
	cache       *gocache.Cache
	inflight    singleflight.Group
	callTimeout time.Duration
}

func New(opts Options) (*Pipeline, error) {
	if opts.Describer == nil {
		return nil, fmt.Errorf("describer is required")
	}
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if opts.References == nil {
		return nil, fmt.Errorf("reference source is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var descCache *gocache.Cache
	if opts.DescribeCacheTTL > 0 {
		descCache = gocache.New(opts.DescribeCacheTTL, opts.DescribeCacheTTL)
	}

	return &Pipeline{
		describer:   opts.Describer,
		synthesizer: opts.Synthesizer,
		references:  opts.References,
		ledger:      opts.Ledger,
		store:       opts.Store,
		logger:      logger,
		cache:       descCache,
		callTimeout: opts.CallTimeout,
	}, nil
}

// callCtx bounds one backend call without shortening the request
// deadline for later calls.
func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout > 0 {
		return context.WithTimeout(ctx, p.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Run executes the full per-angle pipeline for one request. Angles are
// independent: a failure in one never aborts the others. The ledger is
// updated exactly once, after every angle has settled, whether or not any
// of them succeeded.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	refs, err := p.references.References(ctx, req.StyleID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve references: %w", err)
	}

	runID := uuid.NewString()
	userImages := req.normalizedImages()

	var apiCalls atomic.Int64
	angles := Angles()
	outcomes := make([]Outcome, len(angles))

	var eg errgroup.Group
	for i, angle := range angles {
		i, angle := i, angle
		eg.Go(func() error {
			outcomes[i] = p.runAngle(ctx, runID, angle, userImages[i], refs, req.Color, &apiCalls)
			return nil
		})
	}
	_ = eg.Wait()

	result := Result{
		Outcomes: make(map[Angle]Outcome, len(angles)),
		APICalls: int(apiCalls.Load()),
	}
	for i, angle := range angles {
		result.Outcomes[angle] = outcomes[i]
		if !outcomes[i].OK() {
			result.Failed++
		}
	}

	if err := p.ledger.RecordGeneration(ctx, req.StyleID, result.APICalls); err != nil {
		p.logger.Error("ledger update failed", "style_id", req.StyleID, "err", err)
	}

	p.logger.Info("pipeline finished",
		"run_id", runID,
		"style_id", req.StyleID,
		"failed_angles", result.Failed,
		"api_calls", result.APICalls,
	)

	if result.AllFailed() {
		return result, ErrAllAnglesFailed
	}
	return result, nil
}

func (p *Pipeline) runAngle(ctx context.Context, runID string, angle Angle, userImage gemini.Blob, refs ReferenceSet, color string, apiCalls *atomic.Int64) Outcome {
	ref, ok := refs[angle]
	if !ok || len(ref.Data) == 0 {
		return failed(MissingReference, fmt.Sprintf("style has no %s reference image", angle))
	}

	userDesc, err := p.describe(ctx, userImage, prompt.UserDescription(), apiCalls)
	if err != nil {
		p.logger.Error("user describe failed", "run_id", runID, "angle", angle, "err", err)
		return failed(DescribeUserFailed, err.Error())
	}

	refDesc, err := p.describe(ctx, ref, prompt.HairstyleDescription(), apiCalls)
	if err != nil {
		p.logger.Error("reference describe failed", "run_id", runID, "angle", angle, "err", err)
		return failed(DescribeReferenceFailed, err.Error())
	}

	synthCtx, cancel := p.callCtx(ctx)
	image, err := p.synthesizer.Synthesize(synthCtx, prompt.Generation(userDesc, refDesc, color, string(angle)))
	cancel()
	if err != nil {
		p.logger.Error("synthesize failed", "run_id", runID, "angle", angle, "err", err)
		return failed(SynthesizeFailed, err.Error())
	}
	apiCalls.Add(1)

	key := fmt.Sprintf("generated/%s/%s.png", runID, angle)
	if err := p.store.Put(ctx, key, "image/png", bytes.NewReader(image)); err != nil {
		p.logger.Error("store generated image failed", "run_id", runID, "angle", angle, "err", err)
		return failed(StoreFailed, err.Error())
	}

	return Outcome{Key: key}
}

// describe wraps the describer with the TTL cache, collapsing concurrent
// duplicates (angles sharing the fallback upload) into one backend call.
// Only calls that reach the backend count as API-call units; cache and
// singleflight hits are free.
func (p *Pipeline) describe(ctx context.Context, image gemini.Blob, instruction string, apiCalls *atomic.Int64) (string, error) {
	key := describeKey(image, instruction)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			if text, ok := cached.(string); ok {
				return text, nil
			}
		}
	}

	value, err, _ := p.inflight.Do(key, func() (any, error) {
		callCtx, cancel := p.callCtx(ctx)
		defer cancel()

		text, err := p.describer.Describe(callCtx, image, instruction)
		if err != nil {
			return "", err
		}
		apiCalls.Add(1)
		if p.cache != nil {
			p.cache.SetDefault(key, text)
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func describeKey(image gemini.Blob, instruction string) string {
	imgSum := sha256.Sum256(image.Data)
	insSum := sha256.Sum256([]byte(instruction))
	return hex.EncodeToString(imgSum[:]) + "|" + hex.EncodeToString(insSum[:8])
}

func failed(kind FailureKind, message string) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Message: message}}
}
