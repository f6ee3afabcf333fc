package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"insta-relay/internal/api"
	"insta-relay/internal/cache"
	"insta-relay/internal/config"
	"insta-relay/internal/dialog"
	"insta-relay/internal/instagram"
	"insta-relay/internal/relay"
	"insta-relay/internal/telegram"
)

func main() {
	startTime := time.Now()

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     true,
	})

	configFile := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logrus.Fatalf(color.RedString("Failed to load config: %v"), err)
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "main",
		"config_summary": map[string]interface{}{
			"allowed_chats": len(cfg.Telegram.AllowedChats),
			"allowed_users": cfg.Telegram.AllowedUsers,
			"instagram":     cfg.Instagram.Username,
			"redis_addr":    cfg.Cache.RedisAddr,
			"workers":       cfg.Relay.Workers,
			"api_addr":      cfg.API.ListenAddr,
		},
	}).Debug("Config summary")

	var lookupCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		lookupCache, err = cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logrus.Fatalf(color.RedString("Failed to connect to Redis: %v"), err)
		}
	} else {
		lookupCache = cache.NewMemoryCache(time.Minute)
		logrus.Info(color.YellowString("No redis_addr configured, using in-memory cache"))
	}
	defer func() {
		if err := lookupCache.Close(); err != nil {
			logrus.Errorf("Failed to close cache: %v", err)
		}
	}()

	igClient, err := instagram.NewGoinstaClient(&cfg.Instagram)
	if err != nil {
		logrus.Fatalf(color.RedString("Failed to start Instagram client: %v"), err)
	}
	defer func() {
		if err := igClient.Close(); err != nil {
			logrus.Errorf("Failed to close Instagram session: %v", err)
		}
	}()
	client := instagram.NewCachedClient(igClient, lookupCache, cfg.Cache.TTL)

	bot, err := telegram.NewBot(&cfg.Telegram)
	if err != nil {
		logrus.Fatalf(color.RedString("Failed to start Telegram bot: %v"), err)
	}

	// the manager is assigned below; dialogs only expire after Start
	var botMgr *telegram.BotManager
	dialogs := dialog.NewManager(cfg.Relay.DialogTimeout, func(s dialog.DialogState) {
		botMgr.NotifyDialogExpired(s)
	})
	bridge := relay.NewBridge(client, dialogs, cfg)
	botMgr = telegram.NewBotManager(bot, cfg, bridge)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return botMgr.Start(gctx)
	})
	if cfg.API.ListenAddr != "" {
		server := api.NewServer(&cfg.API, bridge)
		g.Go(func() error {
			return server.Start(gctx)
		})
	}
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logrus.Infof(color.YellowString("Received %s, shutting down..."), sig)
			stop()
		case <-gctx.Done():
		}
		return nil
	})

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "main",
		"took":   time.Since(startTime),
	}).Info(color.GreenString("insta-relay started"))

	if err := g.Wait(); err != nil {
		logrus.Errorf(color.RedString("insta-relay stopped with error: %v"), err)
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "main",
		"uptime": time.Since(startTime),
	}).Info(color.GreenString("insta-relay shut down"))
}
