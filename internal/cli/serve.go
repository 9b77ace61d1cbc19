package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/callforge/switchboard/internal/auth"
	"github.com/callforge/switchboard/internal/broadcast"
	"github.com/callforge/switchboard/internal/callcontrol"
	"github.com/callforge/switchboard/internal/callstore"
	"github.com/callforge/switchboard/internal/config"
	"github.com/callforge/switchboard/internal/gateway"
	"github.com/callforge/switchboard/internal/logging"
	"github.com/callforge/switchboard/internal/presence"
	"github.com/callforge/switchboard/internal/registry"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// --log-level wins over the config file
			if logLevel == "" {
				log = logging.New(nil, cfg.Logging.Level, cfg.Logging.Style)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dbPath := cfg.Storage.Path
			if !filepath.IsAbs(dbPath) {
				dbPath = filepath.Join(paths.Data, dbPath)
			}
			db, err := callstore.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening call store: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("call store ready")

			recorder := callstore.NewRecorder(db, log)
			defer recorder.Close()

			var pres *presence.Store
			if cfg.Redis.Addr != "" {
				pres, err = presence.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
				if err != nil {
					return fmt.Errorf("connecting to redis: %w", err)
				}
				defer pres.Close()
			} else {
				log.Info().Msg("redis not configured, presence mirroring disabled")
			}

			verifier, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
			if err != nil {
				return fmt.Errorf("configuring auth: %w", err)
			}

			sessions := registry.New(log)
			hub := broadcast.NewHub(log)

			calls := callcontrol.New(sessions, hub, recorder, log,
				callcontrol.WithRingingDelay(cfg.Sessions.RingingDelay()),
				callcontrol.WithPresence(pres),
			)

			reaper := callcontrol.NewReaper(sessions,
				cfg.Sessions.SweepInterval(), cfg.Sessions.MaxLifetime(), log)
			go reaper.Run(ctx)

			srv := gateway.New(cfg, verifier, hub, calls, sessions, log,
				gateway.WithPresence(pres))

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
