package di

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"docrelay/packages/go/backend/cache"
	"docrelay/packages/go/backend/config"
	"docrelay/packages/go/backend/pipeline"
	"docrelay/packages/go/backend/registry"
	"docrelay/packages/go/backend/session"
	"docrelay/packages/go/backend/telemetry"
	"docrelay/packages/go/backend/translation"
	"docrelay/packages/go/backend/tts"
)

// Container holds the relay's shared services. Everything in it is safe for
// concurrent use and is built once per process.
type Container struct {
	Logger      *zap.SugaredLogger
	Metrics     *telemetry.Metrics
	Documents   cache.Store
	Registry    *registry.Registry
	Translator  translation.Translator
	Synthesizer tts.Synthesizer
	Audio       *tts.FileStore
	Jobs        *pipeline.Jobs
	Dispatcher  *session.Dispatcher
	Sweeper     *cache.Sweeper

	pipelineConfig pipeline.Config
	sweepInterval  time.Duration
	closers        []io.Closer
}

// ContainerOption configures a container during construction.
type ContainerOption func(*Container)

// WithLogger sets the logger shared by all services.
func WithLogger(l *zap.SugaredLogger) ContainerOption {
	return func(c *Container) { c.Logger = l }
}

// WithMetrics sets the telemetry instruments.
func WithMetrics(m *telemetry.Metrics) ContainerOption {
	return func(c *Container) { c.Metrics = m }
}

// WithDocuments sets the upload cache backend.
func WithDocuments(s cache.Store) ContainerOption {
	return func(c *Container) { c.Documents = s }
}

// WithTranslator sets the translator implementation.
func WithTranslator(t translation.Translator) ContainerOption {
	return func(c *Container) { c.Translator = t }
}

// WithSynthesizer sets the TTS synthesizer implementation.
func WithSynthesizer(s tts.Synthesizer) ContainerOption {
	return func(c *Container) { c.Synthesizer = s }
}

// WithAudioStore sets where generated clips are kept.
func WithAudioStore(s *tts.FileStore) ContainerOption {
	return func(c *Container) { c.Audio = s }
}

// WithPipelineConfig sets job tuning.
func WithPipelineConfig(cfg pipeline.Config) ContainerOption {
	return func(c *Container) { c.pipelineConfig = cfg }
}

// WithSweepInterval sets how often the cache and audio store are swept.
func WithSweepInterval(d time.Duration) ContainerOption {
	return func(c *Container) { c.sweepInterval = d }
}

// NewContainer applies opts, fills unset services with offline defaults and
// wires the registry, jobs, dispatcher and sweeper on top of them.
func NewContainer(opts ...ContainerOption) (*Container, error) {
	c := &Container{
		pipelineConfig: pipeline.Config{PacingDelay: pipeline.DefaultPacingDelay},
		sweepInterval:  cache.DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Documents == nil {
		c.Documents = cache.NewMemoryStore(cache.DefaultTTL)
	}
	if c.Translator == nil {
		c.Translator = translation.NewStubTranslator(nil)
	}
	if c.Synthesizer == nil {
		c.Synthesizer = tts.NewStubSynthesizer(nil)
	}
	if c.Audio == nil {
		store, err := tts.NewFileStore(filepath.Join(os.TempDir(), "docrelay-audio"), tts.DefaultAudioTTL)
		if err != nil {
			return nil, err
		}
		c.Audio = store
	}

	c.Registry = registry.New(c.Logger.Named("registry"), c.Metrics)
	c.Jobs = pipeline.New(pipeline.Deps{
		Emitter:     c.Registry,
		Documents:   c.Documents,
		Translator:  c.Translator,
		Synthesizer: c.Synthesizer,
		Audio:       c.Audio,
		Logger:      c.Logger.Named("pipeline"),
		Metrics:     c.Metrics,
	}, c.pipelineConfig)
	c.Dispatcher = session.NewDispatcher(c.Registry, c.Jobs, c.Logger.Named("session"), c.Metrics)
	c.Sweeper = cache.NewSweeper(c.Documents, c.sweepInterval, c.Logger.Named("sweeper"), c.Audio)

	return c, nil
}

// FromConfig builds the production container described by cfg.
func FromConfig(cfg config.Config, logger *zap.SugaredLogger, metrics *telemetry.Metrics) (*Container, error) {
	translator, err := newTranslator(cfg.Translation)
	if err != nil {
		return nil, err
	}
	synthesizer, err := newSynthesizer(cfg.Speech)
	if err != nil {
		return nil, err
	}
	audio, err := tts.NewFileStore(cfg.Speech.AudioDir, cfg.Speech.AudioTTL)
	if err != nil {
		return nil, err
	}

	var closers []io.Closer
	var documents cache.Store
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		store, err := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		documents = store
		closers = append(closers, store)
	case config.BackendMemory:
		documents = cache.NewMemoryStore(cfg.Cache.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	c, err := NewContainer(
		WithLogger(logger),
		WithMetrics(metrics),
		WithDocuments(documents),
		WithTranslator(translator),
		WithSynthesizer(synthesizer),
		WithAudioStore(audio),
		WithSweepInterval(cfg.Cache.SweepInterval),
		WithPipelineConfig(pipeline.Config{
			PacingDelay:       cfg.Pipeline.PacingDelay,
			MaxParagraphRunes: cfg.Pipeline.MaxParagraphRunes,
		}),
	)
	if err != nil {
		for _, closer := range closers {
			_ = closer.Close()
		}
		return nil, err
	}
	c.closers = closers
	return c, nil
}

func newTranslator(cfg config.TranslationConfig) (translation.Translator, error) {
	switch cfg.Provider {
	case config.ProviderStub:
		return translation.NewStubTranslator(nil), nil
	case config.ProviderOpenAI:
		return translation.NewOpenAITranslator(translation.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Timeout:      cfg.Timeout,
			MaxRetries:   2,
		})
	case config.ProviderAnthropic:
		return translation.NewAnthropicTranslator(translation.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Timeout:      cfg.Timeout,
			MaxRetries:   2,
		})
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
	}
}

func newSynthesizer(cfg config.SpeechConfig) (tts.Synthesizer, error) {
	switch cfg.Provider {
	case config.ProviderStub:
		return tts.NewStubSynthesizer(nil), nil
	case config.ProviderOpenAI:
		return tts.NewOpenAISynthesizer(tts.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Voice:      cfg.Voice,
			Timeout:    cfg.Timeout,
			MaxRetries: 2,
		}), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}
}

// NewTestContainer creates a container with stub implementations, no pacing
// and clips stored under audioDir.
func NewTestContainer(audioDir string, opts ...ContainerOption) (*Container, error) {
	audio, err := tts.NewFileStore(audioDir, tts.DefaultAudioTTL)
	if err != nil {
		return nil, err
	}
	base := []ContainerOption{
		WithTranslator(translation.NewStubTranslator(&translation.StubTranslatorConfig{Prefix: "[粵] "})),
		WithSynthesizer(tts.NewStubSynthesizer(&tts.StubSynthesizerConfig{SampleRate: 8000})),
		WithAudioStore(audio),
		WithPipelineConfig(pipeline.Config{}),
	}
	return NewContainer(append(base, opts...)...)
}

// Close releases backend connections.
func (c *Container) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
