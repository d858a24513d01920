// Package app wires the inboxmesh services using go.uber.org/dig.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/dig"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/agent/calendaragent"
	"github.com/hupe1980/inboxmesh/agent/mailagent"
	"github.com/hupe1980/inboxmesh/calendar"
	"github.com/hupe1980/inboxmesh/config"
	"github.com/hupe1980/inboxmesh/dispatcher"
	"github.com/hupe1980/inboxmesh/google"
	"github.com/hupe1980/inboxmesh/instrumentation"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/model/anthropic"
	"github.com/hupe1980/inboxmesh/model/openai"
)

// App holds the resolved service singletons. Callers use its fields and
// never import dig.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Telemetry *instrumentation.Provider
	Location  *time.Location
	Calendar  *calendar.GoogleStore
	Mail      *mail.GmailStore
	Model     model.Model
	Agents    []*agent.SubAgent
}

// version is a named string so dig can tell it apart from other strings.
type version string

// New builds and wires all services from cfg. Google access requires a
// token saved by `inboxmesh auth`.
func New(ctx context.Context, cfg *config.Config, ver string) (*App, error) {
	d := dig.New()

	providers := []any{
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		func() version { return version(ver) },
		newLogger,
		newTelemetry,
		newLocation,
		newGoogleClient,
		newCalendar,
		newEmbedder,
		newMail,
		newModel,
		newAgents,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	var a *App
	err := d.Invoke(func(
		logger logging.Logger,
		telemetry *instrumentation.Provider,
		loc *time.Location,
		cal *calendar.GoogleStore,
		inbox *mail.GmailStore,
		m model.Model,
		agents []*agent.SubAgent,
	) {
		a = &App{
			Config:    cfg,
			Logger:    logger,
			Telemetry: telemetry,
			Location:  loc,
			Calendar:  cal,
			Mail:      inbox,
			Model:     m,
			Agents:    agents,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", dig.RootCause(err))
	}
	return a, nil
}

// Dispatcher builds a dispatcher over the app's agents. policy applies to
// agents without an override in the configuration.
func (a *App) Dispatcher(policy dispatcher.Policy) (*dispatcher.Dispatcher, error) {
	metrics := a.Telemetry.Metrics()
	return dispatcher.New(a.Model, a.Agents, func(o *dispatcher.Options) {
		o.Policy = policy
		o.Policies = a.Config.Policies()
		o.MaxAnswerRounds = a.Config.Dispatcher.MaxAnswerRounds
		o.Location = a.Location
		o.MaxIterations = a.Config.Graph.MaxIterations
		o.Logger = a.Logger
		o.Tracer = a.Telemetry.Tracer("github.com/hupe1980/inboxmesh/dispatcher")
		o.GraphObserver = metrics
		o.ToolObserver = metrics
		o.InferenceObserver = metrics
	})
}

// Close flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	return a.Telemetry.Shutdown(ctx)
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(cfg.LoggingConfig())
}

func newTelemetry(ctx context.Context, cfg *config.Config, ver version, logger logging.Logger) (*instrumentation.Provider, error) {
	return instrumentation.NewProvider(ctx, cfg.InstrumentationConfig(string(ver)), logger)
}

func newLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Location()
}

func newGoogleClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	conf, err := google.OAuthConfig(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return google.HTTPClient(ctx, conf, cfg.Google.TokenFile)
}

func newCalendar(ctx context.Context, cfg *config.Config, client *http.Client, loc *time.Location, telemetry *instrumentation.Provider) (*calendar.GoogleStore, error) {
	return calendar.NewGoogleStore(ctx, client, func(o *calendar.GoogleStoreOptions) {
		o.CalendarID = cfg.Google.CalendarID
		o.TaskListID = cfg.Google.TaskListID
		o.Location = loc
		o.Observer = telemetry.Metrics()
	})
}

// newEmbedder returns nil when semantic search is disabled.
func newEmbedder(cfg *config.Config) *openai.Embedder {
	if !cfg.Embedding.Enabled {
		return nil
	}
	return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		if cfg.Embedding.Model != "" {
			o.Model = cfg.Embedding.Model
		}
		o.APIKey = cfg.Embedding.APIKey
	})
}

func newMail(ctx context.Context, cfg *config.Config, client *http.Client, loc *time.Location, embedder *openai.Embedder, telemetry *instrumentation.Provider) (*mail.GmailStore, error) {
	return mail.NewGmailStore(ctx, client, func(o *mail.GmailStoreOptions) {
		o.UserID = cfg.Google.UserID
		o.Location = loc
		o.ChunkSize = cfg.Embedding.ChunkSize
		o.Observer = telemetry.Metrics()
		if embedder != nil {
			o.Embedder = embedder
		}
	})
}

func newModel(cfg *config.Config) (model.Model, error) {
	mc := cfg.Model
	var m model.Model
	switch mc.Provider {
	case config.ProviderOpenAI:
		m = openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			o.MaxCompletionTokens = mc.MaxTokens
			o.APIKey = mc.APIKey
		})
	case config.ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			o.MaxTokens = mc.MaxTokens
			o.APIKey = mc.APIKey
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}

	if mc.RateLimit > 0 {
		burst := mc.Burst
		if burst <= 0 {
			burst = 1
		}
		m = model.WithRateLimit(m, mc.RateLimit, burst)
	}
	return m, nil
}

func newAgents(cfg *config.Config, m model.Model, cal *calendar.GoogleStore, inbox *mail.GmailStore, loc *time.Location, logger logging.Logger, telemetry *instrumentation.Provider) ([]*agent.SubAgent, error) {
	metrics := telemetry.Metrics()
	common := func(o *agent.SubAgentOptions) {
		o.MaxIterations = cfg.Graph.MaxIterations
		o.Logger = logger
		o.Tracer = telemetry.Tracer("github.com/hupe1980/inboxmesh/agent")
		o.GraphObserver = metrics
		o.ToolObserver = metrics
		o.InferenceObserver = metrics
	}

	ca, err := calendaragent.NewWithOptions(m, cal, calendaragent.Options{Location: loc}, common)
	if err != nil {
		return nil, err
	}
	ma, err := mailagent.NewWithOptions(m, inbox, mailagent.Options{Location: loc}, common)
	if err != nil {
		return nil, err
	}
	return []*agent.SubAgent{ca, ma}, nil
}
