package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/punchlist-monitor/internal/api"
	"github.com/ignite/punchlist-monitor/internal/browser"
	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/notify"
	"github.com/ignite/punchlist-monitor/internal/pipeline"
	"github.com/ignite/punchlist-monitor/internal/pkg/distlock"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
	"github.com/ignite/punchlist-monitor/internal/repository/postgres"
	"github.com/ignite/punchlist-monitor/internal/scheduler"
	"github.com/ignite/punchlist-monitor/internal/sharepoint"
	"github.com/ignite/punchlist-monitor/internal/spreadsheet"
	"github.com/ignite/punchlist-monitor/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	once := flag.String("once", "", "run a single cycle (extract or report) and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		remote  *storage.S3Store
		objects spreadsheet.ObjectStore
		getter  pipeline.ObjectGetter
	)
	if hasRemote(cfg.Destinations) {
		remote, err = storage.NewS3StoreFromConfig(ctx, cfg.Storage)
		if err != nil {
			logger.Error("failed to initialise S3 destinations", "error", err)
			os.Exit(1)
		}
		objects, getter = remote, remote
	}

	sender, err := newSender(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialise mail sender", "error", err)
		os.Exit(1)
	}

	session := browser.NewSession(cfg.Browser, cfg.SharePoint.SiteURL)
	defer session.Close()

	runner := pipeline.NewRunner(cfg, pipeline.Deps{
		Auth: session,
		NewAPI: func(creds domain.Credentials) (sharepoint.API, error) {
			return sharepoint.NewClient(cfg.SharePoint, creds)
		},
		Writer: spreadsheet.NewWriter(spreadsheet.WithObjectStore(objects, storage.IsS3)),
		Reader: pipeline.NewArtifactSource(cfg.Destinations, getter, storage.IsS3),
		Sender: sender,
	})

	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}
	db := connectDatabase(ctx, cfg.Database.URL)
	if db != nil {
		defer db.Close()
	}

	var opts []scheduler.Option
	var runs *postgres.RunRepo
	if db != nil {
		runs = postgres.NewRunRepo(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			logger.Warn("run history disabled", "error", err)
			runs = nil
		} else {
			opts = append(opts, scheduler.WithRecorder(runs))
		}
	}

	lock := distlock.NewLock(redisClient, db, cfg.Redis.LockKey, cfg.Redis.LockTTL())
	sched, err := scheduler.New(cfg.Schedule, runner, lock, opts...)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}

	if *once != "" {
		kind := domain.CycleKind(*once)
		if kind != domain.CycleExtract && kind != domain.CycleReport {
			logger.Error("unknown cycle kind", "kind", *once)
			os.Exit(2)
		}
		res := sched.RunOnce(ctx, kind)
		if res == nil || !res.Success {
			os.Exit(1)
		}
		return
	}

	var server *api.Server
	if cfg.Server.Enabled {
		hc := api.NewHealthChecker()
		hc.Register("redis", redisPing(redisClient), 2*time.Second, 500*time.Millisecond)
		hc.Register("database", dbPing(db), 3*time.Second, time.Second)

		var lister api.RunLister
		if runs != nil {
			lister = runs
		}
		server = api.NewServer(cfg.Server, api.NewHandlers(sched, lister), hc)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status API stopped", "error", err)
			}
		}()
	}

	logger.Info("punch list monitor started",
		"lists", len(cfg.Lists),
		"destinations", len(cfg.Destinations),
		"lock", lockBackend(redisClient, db))

	_ = sched.Start(ctx)
	logger.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status API shutdown error", "error", err)
		}
	}
}

func newSender(ctx context.Context, cfg *config.Config) (notify.Sender, error) {
	if cfg.Mail.From == "" {
		logger.Warn("mail.from not set, writing messages to disk", "dir", cfg.ReportDir)
		return notify.NewFileSender(cfg.ReportDir, "punchlist-monitor@localhost"), nil
	}
	sender, err := notify.NewSESSender(ctx, cfg.Mail)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func hasRemote(dests []string) bool {
	for _, d := range dests {
		if storage.IsS3(d) {
			return true
		}
	}
	return false
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, falling back", "error", err)
		client.Close()
		return nil
	}
	return client
}

func connectDatabase(ctx context.Context, url string) *sql.DB {
	if url == "" {
		return nil
	}
	db, err := postgres.Open(ctx, url)
	if err != nil {
		logger.Warn("database unavailable, running without history", "host", dsnHost(url), "error", err)
		return nil
	}
	return db
}

func redisPing(client *redis.Client) api.PingFunc {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}

func dbPing(db *sql.DB) api.PingFunc {
	if db == nil {
		return nil
	}
	return db.PingContext
}

func lockBackend(redisClient *redis.Client, db *sql.DB) string {
	switch {
	case redisClient != nil:
		return "redis"
	case db != nil:
		return "postgres"
	default:
		return "local"
	}
}

func dsnHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
