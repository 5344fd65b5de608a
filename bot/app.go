// Package bot assembles the assistant application: configuration,
// storage backends, the event engine and the Telegram runtime wiring.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kcbot/assistant"
	"github.com/m3rciful/kcbot/backend"
	"github.com/m3rciful/kcbot/backend/notion"
	"github.com/m3rciful/kcbot/backend/postgres"
	corebootstrap "github.com/m3rciful/kcbot/core/bootstrap"
	corecmd "github.com/m3rciful/kcbot/core/cmd"
	coreconfig "github.com/m3rciful/kcbot/core/config"
	"github.com/m3rciful/kcbot/core/logger"
	tg "github.com/m3rciful/kcbot/core/telegram"
	"github.com/m3rciful/kcbot/core/telegram/router"
)

// Config wraps the core configuration for the cmd runner.
type Config struct {
	Core *coreconfig.Config
}

// CoreConfig implements corecmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return c.Core }

// LoadConfig reads the YAML/env configuration from disk.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{Core: cfg}, nil
}

// App is the assembled assistant application.
type App struct {
	cfg *coreconfig.Config

	db       *sqlx.DB
	store    *assistant.Store
	pg       *postgres.Store
	notion   *notion.Client
	resolver *backend.Resolver
	engine   *assistant.Engine

	scheduler *briefScheduler
	jobs      *jobWorker
}

// Bootstrap builds the application from a loaded configuration.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil core config")
	}
	return NewApp(cfg)
}

// NewApp wires storage and the engine. Postgres is optional; when the
// database section is empty the assistant runs on in-memory state.
func NewApp(cfg *coreconfig.Config) (*App, error) {
	app := &App{cfg: cfg}

	if cfg.Database.Host != "" {
		res, err := corebootstrap.Run(corebootstrap.Options{
			Config:   cfg,
			Database: cfg.Database,
			Seeders: []corebootstrap.Seeder{
				corebootstrap.SeederFunc(seedDefaultLabels),
			},
		})
		if err != nil {
			return nil, err
		}
		app.db = res.DB
	} else if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("bot: logger init failed: %w", err)
	}

	app.store = assistant.NewStore(cfg.Assistant.RenderCacheSize)
	app.resolver = &backend.Resolver{
		Memory: backend.NewMemory(app.store),
	}
	if app.db != nil {
		app.pg = postgres.New(app.db)
		app.resolver.Postgres = app.pg
	}
	if cfg.Notion.Configured() {
		app.notion = notion.New(notion.Config{
			Token:   cfg.Notion.Token,
			NotesDB: cfg.Notion.NotesDB,
			TasksDB: cfg.Notion.TasksDB,
			Version: cfg.Notion.Version,
		})
		var settings notion.SettingsStore
		if app.pg != nil {
			settings = app.pg
		}
		app.resolver.Notion = notion.NewBackend(app.notion, settings)
	}

	app.engine = assistant.NewEngine(app.store, app.resolver.Resolve)
	if app.pg != nil {
		app.engine.Mapper = app.pg
	}

	app.scheduler = newBriefScheduler(app)
	return app, nil
}

// seedDefaultLabels keeps the labels table aligned with the label options
// provisioned on the document-store databases.
func seedDefaultLabels(ctx context.Context, db *sqlx.DB) error {
	pg := postgres.New(db)
	for _, name := range notion.DefaultLabels {
		if _, err := pg.UpsertLabel(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.registerCommands(reg)
	a.registerCallbacks(reg)
	reg.SetTextFallback(a.handleUpdate)

	middlewares := tg.DefaultMiddlewares(a.cfg, nil)
	middlewares = append(middlewares, a.ownerGate())

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(nil, reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			if a.pg != nil && rt.Bot != nil {
				a.jobs = newJobWorker(a, rt.Bot)
				go a.jobs.run()
			}
			a.scheduler.start(ctx, rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.scheduler.stop()
			if a.jobs != nil {
				a.jobs.shutdown()
			}
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}

// ownerGate drops updates from anyone but the configured owner. With no
// owner configured the gate is open, unless strict mode forces it closed.
func (a *App) ownerGate() tg.Middleware {
	allowed := a.cfg.Telegram.AllowedUserID
	strict := a.cfg.Telegram.StrictOwnerOnly
	return tg.Middleware{
		Name: "owner_gate",
		Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				sender := c.Sender()
				if sender == nil {
					return nil
				}
				if allowed == 0 {
					if strict {
						logger.Warn(context.Background(), "tg", "owner_gate.closed",
							slog.Int64("user_id", sender.ID))
						return nil
					}
					return next(c)
				}
				if sender.ID != allowed {
					return nil
				}
				return next(c)
			}
		},
	}
}
