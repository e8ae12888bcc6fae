package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/config"
	"clinicsched/backend/internal/domain"
)

// tokenCmd mints a bearer token signed with the configured secret, for local
// development against the gRPC and HTTP APIs.
func tokenCmd() *cobra.Command {
	var (
		userID     string
		providerID int64
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			if cfg.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required")
			}
			token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Issue(domain.Caller{UserID: userID, ProviderID: providerID}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject (user id)")
	cmd.Flags().Int64Var(&providerID, "provider", 0, "provider id the caller acts as")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
