package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cablewatch/internal/collector"
	"cablewatch/internal/config"
	"cablewatch/internal/db"
	"cablewatch/internal/metrics"
	"cablewatch/internal/models"
	"cablewatch/internal/notifier"
	"cablewatch/internal/retention"
	"cablewatch/internal/watchdog"
	"cablewatch/internal/web"
	"cablewatch/internal/ws"
)

const retentionInterval = 6 * time.Hour

type App struct {
	cfg     config.Config
	cfgPath string
	log     *slog.Logger

	db *db.Repository

	collector *collector.Service
	watchdog  *watchdog.Watchdog
	retention *retention.Service
	notify    *notifier.Telegram
	metrics   *metrics.Recorder
	hub       *ws.Hub
	web       *web.Server

	httpSrv *http.Server
	reloads chan config.Config
	now     func() time.Time

	mu     sync.Mutex
	status models.Status
}

// New wires every component. cfgPath may be empty; when set, the file is
// watched and watchdog settings are applied on change.
func New(cfg config.Config, cfgPath string, logger *slog.Logger) (*App, error) {
	src, err := collector.NewSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	token, chatID, _ := repo.LoadTelegramSettings(context.Background())
	if token == "" {
		token = cfg.Telegram.BotToken
	}
	if chatID == "" {
		chatID = cfg.Telegram.ChatID
	}
	n := notifier.NewTelegram(token, chatID, cfg.Telegram.DedupWindow)

	wd := watchdog.New(watchdog.Config{
		DriftThresholdDB: cfg.Watchdog.DriftThresholdDB,
		DriftWindow:      cfg.Watchdog.DriftWindow,
	}, repo, n, logger.With("module", "watchdog"))

	app := &App{
		cfg:       cfg,
		cfgPath:   cfgPath,
		log:       logger,
		db:        repo,
		collector: collector.NewService(src, repo, logger.With("module", "collector")),
		watchdog:  wd,
		retention: retention.NewService(repo, cfg.RetentionDays, logger.With("module", "retention")),
		notify:    n,
		metrics:   metrics.New(),
		hub:       ws.New(),
		reloads:   make(chan config.Config, 1),
		now:       time.Now,
	}
	app.web = web.NewServer(repo, n, app.Status, app.metrics.Handler(), app.hub, logger.With("module", "web"))
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: app.web.Routes()}
	return app, nil
}

// Status returns a copy of the poll loop state.
func (a *App) Status() models.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *App) Run(ctx context.Context) error {
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "err", err)
		}
	}()
	go a.hub.Run(ctx)
	if a.cfgPath != "" {
		go func() {
			err := config.Watch(ctx, a.cfgPath, a.log.With("module", "config"), func(c config.Config) {
				select {
				case a.reloads <- c:
				default:
					a.log.Warn("config reload dropped, previous reload still pending")
				}
			})
			if err != nil {
				a.log.Error("config watch failed", "path", a.cfgPath, "err", err)
			}
		}()
	}

	retentionTicker := time.NewTicker(retentionInterval)
	defer retentionTicker.Stop()

	// Immediate first run
	a.retention.Run(ctx)
	pollTimer := time.NewTimer(a.cycle(ctx))
	defer pollTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = a.httpSrv.Shutdown(context.Background())
			return a.db.DB().Close()
		case <-pollTimer.C:
			pollTimer.Reset(a.cycle(ctx))
		case cfg := <-a.reloads:
			a.applyConfig(cfg)
		case <-retentionTicker.C:
			a.retention.Run(ctx)
		}
	}
}

// cycle runs one poll and returns the delay before the next one. The
// interval is computed from the tracker state before Check advances it.
func (a *App) cycle(ctx context.Context) time.Duration {
	base := a.cfg.Poll.BaseInterval
	now := a.now().UTC()

	snap, err := a.collector.Poll(ctx)
	if err != nil {
		a.log.Warn("poll failed", "err", err)
		a.metrics.PollFailed()
		a.metrics.ObservePollInterval(base)
		a.publishStatus(func(s *models.Status) {
			s.LastError = err.Error()
			s.PollIntervalSeconds = base.Seconds()
			next := now.Add(base)
			s.NextPollAt = &next
			s.EventsLastCycle = 0
		})
		return base
	}

	next := base
	if a.cfg.Poll.Adaptive {
		next = a.watchdog.PollInterval(snap, base)
	}
	events := a.watchdog.Check(ctx, snap)
	score := a.watchdog.IngressScore(snap)

	a.metrics.ObserveSnapshot(snap)
	a.metrics.ObserveEvents(events)
	a.metrics.ObserveIngress(score.Score)
	a.metrics.ObservePollInterval(next)

	for _, ev := range events {
		if err := a.hub.Broadcast(ws.EventWatchdog, ev.Record()); err != nil {
			a.log.Warn("broadcast watchdog event", "id", ev.ID, "err", err)
		}
	}

	a.publishStatus(func(s *models.Status) {
		s.Polls++
		s.LastPollAt = &now
		s.LastError = ""
		s.Health = snap.Summary.Health
		s.PollIntervalSeconds = next.Seconds()
		nextAt := now.Add(next)
		s.NextPollAt = &nextAt
		s.EventsLastCycle = len(events)
		s.Ingress = &models.IngressStatus{Score: score.Score, Health: score.Health, Components: score.Components}
		if baseline, ok := a.watchdog.Baseline(); ok {
			s.USChannelBaseline = &baseline
		}
	})
	a.log.Info("poll completed",
		"health", snap.Summary.Health,
		"events", len(events),
		"ingress_score", score.Score,
		"next_poll", next.String())
	return next
}

func (a *App) publishStatus(update func(*models.Status)) {
	a.mu.Lock()
	update(&a.status)
	st := a.status
	a.mu.Unlock()
	if err := a.hub.Broadcast(ws.EventStatus, st); err != nil {
		a.log.Warn("broadcast status", "err", err)
	}
}

// applyConfig takes the hot-reloadable subset of a new configuration.
// Listener address, storage and source changes need a restart.
func (a *App) applyConfig(cfg config.Config) {
	a.cfg.Poll = cfg.Poll
	a.cfg.Watchdog = cfg.Watchdog
	a.watchdog.SetDriftConfig(cfg.Watchdog.DriftThresholdDB, cfg.Watchdog.DriftWindow)
	a.log.Info("config applied",
		"drift_threshold_db", cfg.Watchdog.DriftThresholdDB,
		"drift_window", cfg.Watchdog.DriftWindow.String(),
		"poll_interval", cfg.Poll.BaseInterval.String(),
		"adaptive", cfg.Poll.Adaptive)
}
