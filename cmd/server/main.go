package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/proximityvoice/relay/pkg/config"
	"github.com/proximityvoice/relay/pkg/host"
	"github.com/proximityvoice/relay/pkg/logging"
	"github.com/proximityvoice/relay/pkg/network"
	"github.com/proximityvoice/relay/pkg/positions"
	"github.com/proximityvoice/relay/pkg/presence"
	"github.com/proximityvoice/relay/pkg/relay"
	"github.com/proximityvoice/relay/pkg/sessions"
	"github.com/proximityvoice/relay/pkg/verification"
	"github.com/proximityvoice/relay/pkg/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Infof("starting voice relay server version %s", version.Get())

	cfgStore := config.NewStore(cfg)
	positionStore := positions.NewStore()
	verificationRegistry := verification.NewRegistry()
	sessionRegistry := sessions.NewRegistry()
	presenceTracker := presence.NewTracker(cfg.General.TalkingWindow())

	router := relay.NewRouter(relay.NewRouterOptions{
		Sessions:  sessionRegistry,
		Positions: positionStore,
		Presence:  presenceTracker,
		Config:    cfgStore,
		Logger:    logger,
	})

	broadcaster := relay.NewBroadcaster(relay.NewBroadcasterOptions{
		Sessions:  sessionRegistry,
		Positions: positionStore,
		Presence:  presenceTracker,
		Config:    cfgStore,
		Logger:    logger,
	})

	hostService := host.NewService(host.NewServiceOptions{
		Config:       cfgStore,
		Sessions:     sessionRegistry,
		Verification: verificationRegistry,
		Positions:    positionStore,
		Presence:     presenceTracker,
		Logger:       logger,
	})

	server := network.NewServer(network.NewServerOptions{
		Addr:      cfg.Server.Addr(),
		TLSCert:   cfg.Server.TLSCertFile,
		TLSKey:    cfg.Server.TLSKeyFile,
		StaticDir: cfg.Server.StaticDir,
		Deps: network.Deps{
			Sessions:     sessionRegistry,
			Verification: verificationRegistry,
			Positions:    positionStore,
			Presence:     presenceTracker,
			Router:       router,
			Config:       cfgStore,
			Logger:       logger,
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the config file and re-pushes it to open sessions.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			next, err := config.Load(*configPath)
			if err != nil {
				logger.Errorf("config reload failed: %v", err)
				continue
			}
			hostService.Reload(next)
		}
	}()

	go broadcaster.Start(ctx)

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("voice server error: %v", err)
	}
}
