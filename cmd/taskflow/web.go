package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow-dev/taskflow/internal/api"
	"github.com/taskflow-dev/taskflow/internal/auth"
	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/envfile"
	"github.com/taskflow-dev/taskflow/internal/logger"
	"github.com/taskflow-dev/taskflow/internal/notify"
	"github.com/taskflow-dev/taskflow/internal/procdiscovery"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

func newWebCommand(verbose *bool) *cobra.Command {
	var (
		workspaceDir string
		host         string
		port         int
		reload       bool
	)

	cmd := &cobra.Command{
		Use:   "web [config]",
		Short: "Serve the HTTP/WebSocket control API over a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if len(args) == 1 {
				configPath = args[0]
			}
			return runWeb(webOpts{
				workspaceDir: workspaceDir,
				configPath:   configPath,
				host:         host,
				port:         port,
				reload:       reload,
				verbose:      *verbose,
			})
		},
	}

	cwd, _ := os.Getwd()
	cmd.Flags().StringVarP(&workspaceDir, "workspace", "w", cwd, "workspace directory")
	cmd.Flags().StringVar(&host, "host", "", "override server.host")
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	cmd.Flags().BoolVar(&reload, "reload", false, "reload every queue's config from disk on startup")

	return cmd
}

type webOpts struct {
	workspaceDir string
	configPath   string
	host         string
	port         int
	reload       bool
	verbose      bool
}

func runWeb(opts webOpts) error {
	absWorkspace, err := filepath.Abs(opts.workspaceDir)
	if err != nil {
		return fmt.Errorf("resolve workspace dir: %w", err)
	}

	envfile.Load(absWorkspace)

	logger.Init(logLevel(opts.verbose), true)
	log := logger.Get()

	opsCfg, err := config.LoadOps()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.host != "" {
		opsCfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		opsCfg.Server.Port = opts.port
	}

	notifier := notify.NewClient(notify.Config{
		Timeout:        opsCfg.Notify.Timeout,
		RetryBaseDelay: opsCfg.Notify.RetryBaseDelay,
		RetryAttempts:  opsCfg.Notify.RetryAttempts,
		LogTailLines:   opsCfg.Notify.LogTailLines,
	}, *log)

	ws, err := workspace.Open(absWorkspace, notifier, opsCfg.Task.StopGrace, opsCfg.Task.HistoryCap, *log)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	if opts.configPath != "" {
		name := filepath.Base(opts.configPath)
		if _, err := ws.AddQueue(name, opts.configPath); err != nil {
			return fmt.Errorf("add queue: %w", err)
		}
	}

	if opts.reload {
		for _, qi := range ws.ListQueues() {
			q, ok := ws.GetQueue(qi.ID)
			if !ok {
				continue
			}
			added, rejected, err := q.Load()
			if err != nil {
				log.Warn().Err(err).Str("queue", qi.ID).Msg("reload failed")
				continue
			}
			log.Info().Str("queue", qi.ID).Int("added", len(added)).Int("rejected", len(rejected)).Msg("reloaded queue config")
		}
	}

	authMgr := auth.NewManager(absWorkspace)
	mainLogPath := filepath.Join(absWorkspace, "taskflow.log")

	server := api.NewServer(opsCfg, ws, authMgr, mainLogPath)
	server.Start()
	defer server.Stop()

	addr := fmt.Sprintf("%s:%d", opsCfg.Server.Host, opsCfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  opsCfg.Server.ReadTimeout,
		WriteTimeout: opsCfg.Server.WriteTimeout,
		IdleTimeout:  opsCfg.Server.IdleTimeout,
	}

	if err := procdiscovery.WriteMarker(absWorkspace, opsCfg.Server.Port); err != nil {
		log.Warn().Err(err).Msg("failed to write instance marker")
	}
	defer procdiscovery.RemoveMarker(absWorkspace)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving taskflow web API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := waitForSignal()
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ws.Shutdown(ctx)
	return httpServer.Shutdown(ctx)
}
