package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/callforge/switchboard/internal/config"
	"github.com/callforge/switchboard/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show switchboard configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Switchboard %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Logs:     %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			tlsState := "off"
			if cfg.Gateway.TLS.Enabled {
				tlsState = "on"
			}
			fmt.Printf("Gateway:  port=%d bind=%s tls=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, tlsState)
			fmt.Printf("Auth:     issuer=%s secret=%s\n", cfg.Auth.Issuer, maskSecret(cfg.Auth.Secret))
			fmt.Printf("Sessions: max-lifetime=%s sweep=%s ringing-delay=%s\n",
				cfg.Sessions.MaxLifetime(), cfg.Sessions.SweepInterval(), cfg.Sessions.RingingDelay())
			fmt.Printf("Storage:  %s\n", cfg.Storage.Path)

			if cfg.Redis.Addr != "" {
				fmt.Printf("Redis:    %s db=%d\n", cfg.Redis.Addr, cfg.Redis.DB)
			} else {
				fmt.Println("Redis:    (not configured)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "****"
}
