package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/storyreel/api/internal/auth"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.IssueToken(cfg.JWT.Secret, tokenUser, tokenEmail, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "optional email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	tokenCmd.MarkFlagRequired("user")
}
