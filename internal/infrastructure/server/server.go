// Package server assembles the daemon: configuration, logging, metrics,
// the persistent store, the compositor bridge, the session engine, and the
// loopback status API.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apihttp "github.com/thechief/rememberd/internal/api/http"
	"github.com/thechief/rememberd/internal/api/ws"
	"github.com/thechief/rememberd/internal/domain/desktop"
	"github.com/thechief/rememberd/internal/domain/plugin"
	"github.com/thechief/rememberd/internal/domain/prefs"
	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/domain/session"
	"github.com/thechief/rememberd/internal/domain/store"
	"github.com/thechief/rememberd/internal/domain/wm"
	"github.com/thechief/rememberd/internal/infrastructure/bridge"
	"github.com/thechief/rememberd/internal/infrastructure/config"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
)

// Daemon is the fully wired process.
type Daemon struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *store.Store
	prefs   *prefs.Store
	engine  *session.Engine
	bridge  *bridge.Bridge
	http    *apihttp.Server
	stopFns []func()
}

// New wires a daemon from configuration. Version is reported by the status
// API.
func New(cfg *config.Config, version string) (*Daemon, error) {
	var log *logging.Logger
	if cfg.Logging.Development {
		log = logging.NewDevelopment()
	} else {
		var err error
		log, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	stateDir, err := expandHome(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}

	metrics := monitoring.NewMetrics()

	st := store.New(
		store.NewFileBackend(filepath.Join(stateDir, "sessions.json")),
		cfg.Store.SaveDebounce, log, metrics,
	)
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	prefsStore := prefs.NewStore(filepath.Join(stateDir, "preferences.json"))
	if err := prefsStore.Load(); err != nil {
		log.Warn("preferences unreadable, using defaults", zap.Error(err))
	}
	stopWatch, err := prefs.Watch(prefsStore, log)
	if err != nil {
		log.Warn("preference watcher unavailable", zap.Error(err))
		stopWatch = func() {}
	}

	plugins := plugin.NewRegistry()
	pluginDirs := cfg.Plugins.Dirs
	if len(pluginDirs) == 0 {
		pluginDirs = []string{filepath.Join(stateDir, "plugins")}
	}
	loaded := plugin.LoadDir(plugins, pluginDirs, log)
	log.Info("plugins loaded", zap.Int("count", loaded))

	index := desktop.NewIndex(log)
	if n := index.Scan(desktop.DefaultDirs()); n > 0 {
		log.Info("desktop entries indexed", zap.Int("count", n))
	}

	br := bridge.New(filepath.Join(stateDir, "wm.sock"), log)
	filter := wm.NewDynamicClassFilter(prefsStore.Blacklist, prefsStore, nil)
	tracker := progress.NewTracker()

	engine := session.NewEngine(session.Deps{
		Config:   cfg,
		Store:    st,
		Prefs:    prefsStore,
		Plugins:  plugins,
		Filter:   filter,
		Source:   br,
		Monitors: br,
		Tracker:  tracker,
		Desktop:  index,
		Log:      log,
		Metrics:  metrics,
	})

	var httpSrv *apihttp.Server
	if cfg.Server.Enabled {
		handlers := apihttp.NewHandlers(engine, tracker, prefsStore, st, version)
		stream := ws.NewHandler(tracker, log)
		httpSrv = apihttp.NewServer(cfg.Server.Addr, handlers, stream, log)
	}

	return &Daemon{
		cfg:     cfg,
		log:     log,
		store:   st,
		prefs:   prefsStore,
		engine:  engine,
		bridge:  br,
		http:    httpSrv,
		stopFns: []func(){stopWatch},
	}, nil
}

// Run serves until ctx is canceled, then shuts everything down in order:
// the engine flushes its final capture before the HTTP server drains.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)

	go func() {
		if err := d.bridge.Serve(ctx); err != nil {
			errs <- fmt.Errorf("bridge: %w", err)
		}
	}()
	if d.http != nil {
		go func() {
			if err := d.http.Run(); err != nil {
				errs <- fmt.Errorf("status server: %w", err)
			}
		}()
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- d.engine.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		d.log.Error("component failed", zap.Error(runErr))
		cancel()
	}

	// Engine.Run performs the final capture and sets the shutting-down
	// latch on its way out.
	select {
	case <-engineDone:
	case <-time.After(10 * time.Second):
		d.log.Warn("engine did not stop in time")
	}

	for _, stop := range d.stopFns {
		stop()
	}
	if d.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.http.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("status server shutdown", zap.Error(err))
		}
	}
	d.log.Sync()
	return runErr
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
