package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/callforge/switchboard/internal/auth"
	"github.com/callforge/switchboard/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID   string
		tenantID string
		agentID  string
		role     string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a client identity token for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret is not configured")
			}
			if role == auth.RoleAgent && agentID == "" {
				return fmt.Errorf("--agent is required for the agent role")
			}

			tok, err := auth.Sign(cfg.Auth.Secret, cfg.Auth.Issuer, auth.Identity{
				UserID:   userID,
				TenantID: tenantID,
				AgentID:  agentID,
				Role:     role,
			}, time.Now(), ttl)
			if err != nil {
				return err
			}

			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "dev-user", "user ID claim")
	cmd.Flags().StringVar(&tenantID, "tenant", "dev", "tenant ID claim")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID claim (required for agent role)")
	cmd.Flags().StringVar(&role, "role", auth.RoleAgent, "role claim (agent, supervisor, dashboard)")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")

	return cmd
}
