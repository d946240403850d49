package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/zboralski/loris/internal/history"
	"github.com/zboralski/loris/internal/service"
)

var serveAddr string

// serveCmd exposes the session archive over connect RPC.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded sessions over connect RPC",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	key, err := cfg.HistoryKey()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath(), key)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := service.New(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("serving sessions on %s\n", addr)
	return srv.ListenAndServe(addr)
}
