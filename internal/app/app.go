package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	handler "github.com/Devendrasinghadiya/dekhomovie/api"
	"github.com/Devendrasinghadiya/dekhomovie/internal/bot"
	"github.com/Devendrasinghadiya/dekhomovie/internal/config"
	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
	"github.com/Devendrasinghadiya/dekhomovie/internal/storage"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

var commands = []tg.Command{
	{Command: "start", Description: "Welcome and usage"},
	{Command: "help", Description: "How to search"},
	{Command: "movie", Description: "Find a movie by name"},
	{Command: "tv", Description: "Find a TV show by name"},
	{Command: "id", Description: "Open a title by TMDB or IMDb id"},
}

// Run wires the bot from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client, err := tg.NewClient(cfg.BotToken, tg.Options{Logger: log})
	if err != nil {
		return err
	}
	log.Info("authorized", zap.String("bot", client.Username()))

	cache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	meta := tmdb.NewCachedClient(tmdb.NewClient(tmdb.Options{
		APIKey:    cfg.TMDBAPIKey,
		APIBase:   cfg.TMDBAPIBase,
		ProxyURL:  cfg.ProxyURL,
		ProxyMode: cfg.ProxyMode,
		Logger:    log.Named("tmdb"),
		Metrics:   m,
	}), cache, cfg.CacheTTL)

	var (
		db      *storage.Mongo
		journal bot.Journal
		admin   handler.Journal
	)
	if cfg.MongoURI != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err = storage.NewMongo(dbCtx, cfg.MongoURI)
		cancel()
		if err != nil {
			log.Warn("mongo unavailable, usage journal disabled", zap.Error(err))
			db = nil
		} else {
			journal, admin = db, db
			defer func() { _ = db.Close(context.Background()) }()
		}
	}

	allow, err := cfg.AllowedUsers()
	if err != nil {
		return err
	}

	sched := bot.NewScheduler(client, log.Named("scheduler"), m)
	defer sched.Stop()
	sessions := bot.NewSessionStore(sched, cfg.SessionTTL)
	sessions.OnChange(m.SetSessions)

	coord := bot.NewCoordinator(bot.Config{
		SiteURL:     cfg.SiteURL,
		SiteName:    cfg.SiteName,
		NoticeTTL:   cfg.NoticeTTL,
		MaxPages:    cfg.MaxPages,
		InviteLinks: cfg.GateInviteLinks,
	}, bot.Deps{
		Messenger: client,
		Metadata:  meta,
		Limiter:   bot.NewRateLimiter(cfg.RateWindow, cfg.RateBurst),
		Gate: bot.NewGate(client, bot.GateOptions{
			Chats:   cfg.GateChats,
			Allow:   allow,
			Logger:  log.Named("gate"),
			Metrics: m,
		}),
		Sessions:  sessions,
		Scheduler: sched,
		Journal:   journal,
		Logger:    log.Named("coordinator"),
		Metrics:   m,
	})

	h := handler.New(coord, client, handler.Options{
		AdminChatID: cfg.AdminChatID,
		Journal:     admin,
		Sessions:    sessions,
		Logger:      log.Named("router"),
		Metrics:     m,
	})

	if err := client.SetCommands(ctx, commands); err != nil {
		log.Warn("set commands failed", zap.Error(err))
	}

	var webhook http.Handler
	if cfg.WebhookURL != "" {
		if err := client.SetWebhook(ctx, cfg.WebhookURL); err != nil {
			return err
		}
		webhook = h
		log.Info("webhook mode", zap.String("url", cfg.WebhookURL))
	} else {
		updates, err := client.Updates(ctx)
		if err != nil {
			return err
		}
		go h.Poll(ctx, updates)
		defer client.StopUpdates()
		log.Info("polling mode")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(webhook, reg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	h.Wait()
	log.Info("stopped")
	return nil
}

func newCache(ctx context.Context, cfg *config.Config) (storage.Cache, error) {
	driver := storage.CacheType(cfg.CacheDriver)
	if driver != storage.CacheRedis {
		return storage.NewCache(driver)
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("CACHE_DRIVER=redis needs REDIS_ADDR: %w", storage.ErrInvalidConfig)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return storage.NewCache(storage.CacheRedis, storage.WithRedisClient(rdb))
}
