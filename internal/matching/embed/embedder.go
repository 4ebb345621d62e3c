package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"match-service/internal/metrics"
	"match-service/internal/photostore"
)

var (
	// ErrUnavailable marks a backend that could not be loaded for this process.
	ErrUnavailable = errors.New("embedding backend unavailable")
	// ErrBackendNotConfigured is returned by loaders without an endpoint.
	ErrBackendNotConfigured = errors.New("embedding backend not configured")
	errDimension            = errors.New("embedding dimensions differ")
)

// Backend embeds text and images into one vector space.
type Backend interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	Model() string
}

// Loader builds the backend. It is called at most once per Embedder.
type Loader func(ctx context.Context) (Backend, error)

// PhotoResolver reads the bytes behind a photo reference and returns
// photostore.ErrNotFound for stale or missing references.
type PhotoResolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

type state int32

const (
	stateUninitialized state = iota
	stateReady
	stateUnavailable
)

func (s state) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// Options bound the time spent on the optional image signal.
type Options struct {
	LoadTimeout time.Duration
	CallTimeout time.Duration
	CacheSize   int
}

// Embedder scores free text against a photo. Loading happens on first use,
// once; a failed load disables image similarity for the process lifetime and
// every call then returns 0. Safe for concurrent use.
type Embedder struct {
	load   Loader
	photos PhotoResolver
	opts   Options
	logger zerolog.Logger

	once    sync.Once
	state   atomic.Int32
	backend Backend

	texts  *vectorCache
	images *vectorCache
}

// New returns an embedder in the uninitialized state.
func New(load Loader, photos PhotoResolver, opts Options, logger zerolog.Logger) *Embedder {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	metrics.SetEmbedderState(int(stateUninitialized))
	return &Embedder{
		load:   load,
		photos: photos,
		opts:   opts,
		logger: logger.With().Str("component", "embedder").Logger(),
		texts:  newVectorCache(opts.CacheSize),
		images: newVectorCache(opts.CacheSize),
	}
}

// Disabled returns an embedder that never loads anything.
func Disabled() *Embedder {
	e := New(nil, nil, Options{}, zerolog.Nop())
	e.once.Do(func() { e.setState(stateUnavailable) })
	return e
}

// TextImageSimilarity returns the cosine similarity of text and the photo
// behind photoRef, clamped to [0,1]. Any failure yields 0.
func (e *Embedder) TextImageSimilarity(ctx context.Context, text, photoRef string) (sim float64) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error().Interface("panic", rec).Msg("image similarity panicked")
			metrics.IncImageNeutral("panic")
			sim = 0
		}
	}()

	photoRef = strings.TrimSpace(photoRef)
	if photoRef == "" {
		return 0
	}
	b, ok := e.ensure(ctx)
	if !ok {
		metrics.IncImageNeutral("unavailable")
		return 0
	}

	tv, err := e.textVector(ctx, b, text)
	if err != nil {
		e.logger.Debug().Err(err).Msg("text embedding failed")
		metrics.IncImageNeutral("text_encode")
		return 0
	}
	iv, err := e.imageVector(ctx, b, photoRef)
	if err != nil {
		reason := "image_encode"
		if errors.Is(err, photostore.ErrNotFound) {
			reason = "photo_missing"
		}
		e.logger.Debug().Err(err).Str("photo", photoRef).Msg("image embedding failed")
		metrics.IncImageNeutral(reason)
		return 0
	}
	if len(tv) != len(iv) {
		e.logger.Debug().Err(errDimension).Int("text", len(tv)).Int("image", len(iv)).Msg("skip")
		metrics.IncImageNeutral("dimension")
		return 0
	}
	return Cosine(tv, iv)
}

// Warm triggers the one-time load without scoring anything.
func (e *Embedder) Warm(ctx context.Context) bool {
	_, ok := e.ensure(ctx)
	return ok
}

// State reports uninitialized, ready or unavailable.
func (e *Embedder) State() string { return state(e.state.Load()).String() }

func (e *Embedder) ensure(ctx context.Context) (Backend, bool) {
	e.once.Do(func() { e.init(ctx) })
	if state(e.state.Load()) != stateReady {
		return nil, false
	}
	return e.backend, true
}

func (e *Embedder) init(ctx context.Context) {
	if e.load == nil {
		e.setState(stateUnavailable)
		return
	}
	// the first caller's cancellation must not decide for the whole process
	ctx = context.WithoutCancel(ctx)
	if e.opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	b, err := e.safeLoad(ctx)
	if err != nil || b == nil {
		if err == nil {
			err = ErrUnavailable
		}
		e.setState(stateUnavailable)
		e.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).
			Msg("embedding backend unavailable, image similarity disabled")
		return
	}
	e.backend = b
	e.setState(stateReady)
	e.logger.Info().Str("model", b.Model()).Dur("elapsed", time.Since(start)).Msg("embedding backend ready")
}

func (e *Embedder) safeLoad(ctx context.Context) (b Backend, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b, err = nil, fmt.Errorf("%w: loader panic: %v", ErrUnavailable, rec)
		}
	}()
	return e.load(ctx)
}

func (e *Embedder) setState(s state) {
	e.state.Store(int32(s))
	metrics.SetEmbedderState(int(s))
}

func (e *Embedder) textVector(ctx context.Context, b Backend, text string) ([]float32, error) {
	key := cacheKey(b.Model(), "text", text)
	if v, ok := e.texts.get(key); ok {
		return v, nil
	}
	ctx, cancel := e.callContext(ctx)
	defer cancel()
	v, err := b.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.texts.put(key, v)
	return v, nil
}

func (e *Embedder) imageVector(ctx context.Context, b Backend, ref string) ([]float32, error) {
	key := cacheKey(b.Model(), "image", ref)
	if v, ok := e.images.get(key); ok {
		return v, nil
	}
	if e.photos == nil {
		return nil, photostore.ErrNotFound
	}
	ctx, cancel := e.callContext(ctx)
	defer cancel()
	data, err := e.photos.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, photostore.ErrNotFound
	}
	v, err := b.EmbedImage(ctx, data)
	if err != nil {
		return nil, err
	}
	e.images.put(key, v)
	return v, nil
}

func (e *Embedder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}
