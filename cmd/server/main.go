// Package main is the entry point for the musicng API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/stephaneeybert/musicng-sub001/pkg/api"
	"github.com/stephaneeybert/musicng-sub001/pkg/config"
	"github.com/stephaneeybert/musicng-sub001/pkg/session"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Configuration file")
	port := flag.Int("port", 0, "Server port (overrides the configuration)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ServerPort = *port
	}
	if err := cfg.ApplyLogLevel(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	sess, err := session.NewFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Session error: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := sess.Run(ctx); err != nil {
			logrus.WithError(err).Error("session stopped")
		}
	}()

	fmt.Printf("Starting musicng API server on port %d...\n", cfg.ServerPort)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.ServerPort)

	if err := api.StartServer(ctx, cfg.ServerPort, sess); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
