package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"univ_erp/backend/internal/auth"
	"univ_erp/backend/internal/shared"
)

func (rt *session) runMaintenanceGet(cmd *cobra.Command, args []string) error {
	ctx, cancel := rt.callerContext(cmd)
	defer cancel()
	svc, err := rt.services(ctx)
	if err != nil {
		return err
	}

	state, err := svc.Gate.State(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), state)
	return nil
}

func (rt *session) runMaintenanceSet(on bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := rt.callerContext(cmd)
		defer cancel()
		svc, err := rt.services(ctx)
		if err != nil {
			return err
		}

		state, err := svc.Gate.SetState(ctx, on)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Maintenance state is now %s\n", state)
		return nil
	}
}

// runToken never touches the store; it only needs the signing secret.
func (rt *session) runToken(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = rt.cfg.Security.TokenTTL
	}

	token, expires, err := auth.GenerateToken(rt.cfg.Security.JWTSecret, shared.Caller{UserID: rt.userID, Role: rt.role}, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
