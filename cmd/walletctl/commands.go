package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/deps"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/orders"
	"github.com/and161185/checkout/internal/storage"
	"github.com/and161185/checkout/internal/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operator tools for the checkout service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("database-uri", "d", "", "DB connection string (DATABASE_URI)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (LOG_LEVEL)")
	_ = v.BindPFlag("DATABASE_URI", root.PersistentFlags().Lookup("database-uri"))
	_ = v.BindPFlag("LOG_LEVEL", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newSweepCmd(v),
		newMigrateCmd(v),
		newCreateAdminCmd(v),
		newFeePlanCmd(v),
		newOfferCmd(v),
	)
	return root
}

func databaseURI(v *viper.Viper) (string, error) {
	uri := v.GetString("DATABASE_URI")
	if uri == "" {
		return "", fmt.Errorf("database uri is required (-d or DATABASE_URI)")
	}
	return uri, nil
}

func openStorage(ctx context.Context, v *viper.Viper) (*storage.PostgresStorage, error) {
	uri, err := databaseURI(v)
	if err != nil {
		return nil, err
	}
	return storage.NewPostgreStorage(ctx, uri)
}

func newSweepCmd(v *viper.Viper) *cobra.Command {
	var platformPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release matured wallet entries and book missing ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			d, err := deps.NewDependencies("walletctl", v.GetString("LOG_LEVEL"))
			if err != nil {
				return err
			}
			defer d.Logger.Sync()

			store, err := openStorage(ctx, v)
			if err != nil {
				return err
			}
			defer store.Close()

			platform, err := config.NewPlatformStore(platformPath)
			if err != nil {
				return err
			}

			walletLedger := wallet.NewLedger(store, d.Logger)
			// провайдеры не нужны: дозапись только считает комиссию
			orderLedger := orders.NewLedger(store, gateway.NewRouter(), platform, walletLedger, d.Logger, nil)

			booked, err := orderLedger.Backfill(ctx, 0)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			released, err := walletLedger.PromoteDue(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("release: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "booked %d, released %d\n", booked, released)
			return nil
		},
	}
	cmd.Flags().StringVarP(&platformPath, "config", "c", v.GetString("PLATFORM_CONFIG"), "platform settings file (PLATFORM_CONFIG)")
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uri, err := databaseURI(v)
			if err != nil {
				return err
			}
			if err := storage.Migrate(uri); err != nil {
				return err
			}
			return printVersion(cmd, uri)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uri, err := databaseURI(v)
			if err != nil {
				return err
			}
			if err := storage.MigrateDown(uri, steps); err != nil {
				return err
			}
			return printVersion(cmd, uri)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uri, err := databaseURI(v)
			if err != nil {
				return err
			}
			return printVersion(cmd, uri)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, uri string) error {
	version, dirty, err := storage.MigrationVersion(uri)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func newCreateAdminCmd(v *viper.Viper) *cobra.Command {
	var login, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a back-office user allowed to decide withdrawals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			login = strings.TrimSpace(login)
			if login == "" || password == "" {
				return fmt.Errorf("--login and --password are required")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			store, err := openStorage(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.CreateUser(cmd.Context(), login, string(hash), model.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created: %s\n", user.Login, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "admin login")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

// parseRate reads "percentual:fixed:days", e.g. "2.99:0.49:30".
func parseRate(s string) (model.MethodFee, error) {
	if s == "" {
		return model.MethodFee{Percentual: decimal.Zero, Fixed: decimal.Zero}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return model.MethodFee{}, fmt.Errorf("rate %q: want percentual:fixed:days", s)
	}
	pct, err := decimal.NewFromString(parts[0])
	if err != nil {
		return model.MethodFee{}, fmt.Errorf("rate %q: percentual: %w", s, err)
	}
	fixed, err := decimal.NewFromString(parts[1])
	if err != nil {
		return model.MethodFee{}, fmt.Errorf("rate %q: fixed: %w", s, err)
	}
	var days int
	if _, err := fmt.Sscanf(parts[2], "%d", &days); err != nil || days < 0 {
		return model.MethodFee{}, fmt.Errorf("rate %q: days must be a non-negative integer", s)
	}
	if pct.IsNegative() || fixed.IsNegative() {
		return model.MethodFee{}, fmt.Errorf("rate %q: negative fee", s)
	}
	return model.MethodFee{Percentual: pct, Fixed: fixed, ReleaseDelayDays: days}, nil
}

func newFeePlanCmd(v *viper.Viper) *cobra.Command {
	var name, pix, card, boleto, assign string

	cmd := &cobra.Command{
		Use:   "create-fee-plan",
		Short: "Create a seller fee plan and optionally assign it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan := model.FeePlan{ID: uuid.New(), Name: name}
			var err error
			if plan.Pix, err = parseRate(pix); err != nil {
				return err
			}
			if plan.Card, err = parseRate(card); err != nil {
				return err
			}
			if plan.Boleto, err = parseRate(boleto); err != nil {
				return err
			}

			store, err := openStorage(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateFeePlan(cmd.Context(), plan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fee plan %s created: %s\n", plan.Name, plan.ID)

			if assign == "" {
				return nil
			}
			sellerID, err := uuid.Parse(assign)
			if err != nil {
				return fmt.Errorf("--assign: %w", err)
			}
			if err := store.AssignFeePlan(cmd.Context(), sellerID, plan.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned to seller %s\n", sellerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "custom", "plan name")
	cmd.Flags().StringVar(&pix, "pix", "", "PIX rate as percentual:fixed:days")
	cmd.Flags().StringVar(&card, "card", "", "CARD rate as percentual:fixed:days")
	cmd.Flags().StringVar(&boleto, "boleto", "", "BOLETO rate as percentual:fixed:days")
	cmd.Flags().StringVar(&assign, "assign", "", "seller id to assign the plan to")
	return cmd
}

func newOfferCmd(v *viper.Viper) *cobra.Command {
	var seller, title, price string

	cmd := &cobra.Command{
		Use:   "create-offer",
		Short: "Create a checkout plan buyers can pay for",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sellerID, err := uuid.Parse(seller)
			if err != nil {
				return fmt.Errorf("--seller: %w", err)
			}
			amount, err := decimal.NewFromString(price)
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("--price must be a positive amount")
			}

			store, err := openStorage(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer store.Close()

			offer := model.Offer{ID: uuid.New(), SellerID: sellerID, Title: title, Price: amount.Round(2), Active: true}
			if err := store.CreateOffer(cmd.Context(), offer); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "offer created: %s\n", offer.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&seller, "seller", "", "seller id")
	cmd.Flags().StringVar(&title, "title", "", "offer title shown to providers")
	cmd.Flags().StringVar(&price, "price", "", "price in BRL")
	return cmd
}
