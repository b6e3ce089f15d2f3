package bot

import (
	"context"
	"time"

	"schedbot/bot/handlers"
	"schedbot/bot/notify"
	"schedbot/bot/render"
	"schedbot/bot/store"
	"schedbot/bot/timetable"
	"schedbot/core/bootstrap"
	"schedbot/core/cmd"
	tg "schedbot/core/telegram"
	"schedbot/core/telegram/router"

	"github.com/jmoiron/sqlx"
)

// App is the assembled bot, ready to produce run options for the core
// runtime.
type App struct {
	cfg       *Config
	db        *sqlx.DB
	handlers  *handlers.Handlers
	scheduler *notify.Scheduler
	sender    *proactiveSender
	registry  *tg.Registry
}

// New bootstraps infrastructure and wires every component together.
func New(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	users := store.New(res.DB)
	schedules := timetable.NewClient(timetable.ClientOptions{BaseURL: cfg.Services.TimetableURL})

	var renderer render.Renderer
	if cfg.Services.RendererURL != "" {
		renderer = render.NewClient(render.ClientOptions{BaseURL: cfg.Services.RendererURL})
	}

	ps := &proactiveSender{}
	scheduler := notify.NewScheduler(notify.Options{
		Targets:       users,
		Schedules:     schedules,
		Send:          ps,
		CheckInterval: time.Duration(cfg.Notify.ChangeCheckMinutes) * time.Minute,
	})

	core := cfg.CoreConfig()
	h := handlers.New(handlers.Options{
		Users:              users,
		Schedules:          schedules,
		Renderer:           renderer,
		Snapshots:          scheduler.Snapshots(),
		Notify:             ps,
		AdminID:            core.Telegram.AdminID,
		MaintenanceMessage: core.Maintenance.Message,
		MaintenanceOnStart: core.Maintenance.EnabledOnStart,
	})

	reg := tg.NewRegistry()
	h.RegisterCommands(reg)

	return &App{
		cfg:       cfg,
		db:        res.DB,
		handlers:  h,
		scheduler: scheduler,
		sender:    ps,
		registry:  reg,
	}, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.handlers))
	routes = append(routes, router.TextRoutes(a.handlers, a.registry, router.TextOptions{
		UnknownDocument: a.handlers.UnknownDocument,
	})...)

	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.sender.Bind(rt.Bot, rt.Dispatcher)
			go a.scheduler.Run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			return a.db.Close()
		},
	}, nil
}

// Bootstrap adapts New to the cmd runner's signature.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	return New(carrier.(*Config))
}
