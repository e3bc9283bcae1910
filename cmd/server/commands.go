package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/simaogato/dealflow-backend/internal/adapter/presenter"
	"github.com/simaogato/dealflow-backend/internal/auth"
	"github.com/simaogato/dealflow-backend/internal/config"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
	"github.com/simaogato/dealflow-backend/internal/usecase/seeder"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies the schema
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.store.Dialect())
			return nil
		},
	}
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo deal if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := runSeed(cmd.Context(), a)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded demo deal %s\n", seeder.DemoDealID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Demo deal %s already present\n", seeder.DemoDealID)
			}
			return nil
		},
	}
}

func runSeed(ctx context.Context, a *app) (bool, error) {
	created, err := seeder.NewDemoSeeder(a.store, a.orchestrator).Seed(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to seed demo deal: %w", err)
	}
	if created {
		a.logger.Info("demo deal seeded", "deal_id", seeder.DemoDealID)
	}
	return created, nil
}

func recomputeCmd(configPath *string) *cobra.Command {
	var (
		dealID string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute a deal's payments after its fields changed",
		Long: `Recompute every payment of a deal.

Examples:
  dealflow recompute --deal 00000000-0000-0000-0000-00000000d001
  dealflow recompute --deal <id> --fields fee,number_of_payments`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := presenter.ParseID("deal", dealID)
			if err != nil {
				return err
			}
			changed := domain.AllDealFields
			if len(fields) > 0 {
				if changed, err = domain.ParseDealFields(fields); err != nil {
					return err
				}
			}

			return withApp(cmd, *configPath, func(ctx context.Context, a *app) (*recalc.Result, error) {
				return a.orchestrator.RecomputeForDealChange(ctx, id, changed)
			})
		},
	}

	cmd.Flags().StringVar(&dealID, "deal", "", "deal ID")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "changed fields (fee, number_of_payments, referral_fee_percent, house_percent, category_percents); default all")
	_ = cmd.MarkFlagRequired("deal")
	return cmd
}

func overrideCmd(configPath *string) *cobra.Command {
	var (
		paymentID string
		amount    string
		actor     string
	)

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Freeze a payment at a user-owned amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := presenter.ParseID("payment", paymentID)
			if err != nil {
				return err
			}
			value, err := presenter.ParseAmount(amount)
			if err != nil {
				return err
			}

			return withApp(cmd, *configPath, func(ctx context.Context, a *app) (*recalc.Result, error) {
				return a.orchestrator.OverridePaymentAmount(ctx, id, value, actor)
			})
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment", "", "payment ID")
	cmd.Flags().StringVar(&amount, "amount", "", "override amount, e.g. 9812.00")
	cmd.Flags().StringVar(&actor, "actor", "", "who made the override")
	_ = cmd.MarkFlagRequired("payment")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func clearOverrideCmd(configPath *string) *cobra.Command {
	var paymentID string

	cmd := &cobra.Command{
		Use:   "clear-override",
		Short: "Return a payment to its templated amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := presenter.ParseID("payment", paymentID)
			if err != nil {
				return err
			}

			return withApp(cmd, *configPath, func(ctx context.Context, a *app) (*recalc.Result, error) {
				return a.orchestrator.ClearPaymentOverride(ctx, id)
			})
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment", "", "payment ID")
	_ = cmd.MarkFlagRequired("payment")
	return cmd
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required (set DEALFLOW_AUTH_JWT_SECRET)")
			}

			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Generate(subject, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "actor recorded on overrides")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// withApp bootstraps, runs one write and prints its result as JSON
func withApp(cmd *cobra.Command, configPath string, run func(ctx context.Context, a *app) (*recalc.Result, error)) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := run(ctx, a)
	if err != nil {
		if domain.IsRetryable(err) {
			return fmt.Errorf("%w (safe to retry)", err)
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), presenter.FromResult(result))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
