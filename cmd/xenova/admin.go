package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xenovalaw/xenova/internal/ai/usage"
	"github.com/xenovalaw/xenova/internal/config"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/provisioning"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/usagefeed"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
	"github.com/xenovalaw/xenova/pkg/server"
)

// adminEnv is what the administrative commands operate on.
type adminEnv struct {
	cfg          *config.Config
	store        store.Store
	provisioning *provisioning.Service
	accountant   *usage.Accountant
}

func openAdmin(ctx context.Context) (*adminEnv, error) {
	cfg, err := config.LoadForCLI()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Format:    "console",
		Level:     "warn",
		Component: "xenova-cli",
	})

	st, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adminEnv{
		cfg:          cfg,
		store:        st,
		provisioning: provisioning.NewService(st, licensing.Default()),
		accountant:   usage.NewAccountant(st, usagefeed.Nop{}),
	}, nil
}

func (e *adminEnv) Close() error {
	return e.store.Close()
}

// withAdmin opens the store for the duration of fn.
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, env *adminEnv) error) error {
	ctx := cmd.Context()
	env, err := openAdmin(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				if err := env.store.Ping(ctx); err != nil {
					return fmt.Errorf("database unreachable: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", env.cfg.DatabaseDriver)
				return nil
			})
		},
	}
}

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage law firms",
	}
	cmd.AddCommand(newTenantCreateCmd(), newTenantListCmd(), newTenantSetTierCmd(), newTenantDeactivateCmd())
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var (
		name, tier, billing   string
		ownerEmail, ownerName string
		aiActive              bool
		maxUsers, storageGB   int
		aiQuota               int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a firm and its owner account",
		Example: `  # Prompt for the owner password
  xenova tenant create --name "Rossi & Bianchi" --tier pro --owner-email avv@rossi.it --owner-name "Anna Rossi"

  # Non-interactive
  XENOVA_PASSWORD=... xenova tenant create --name Firm --tier base --owner-email a@b.it --owner-name A --ai --ai-quota 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedTier, err := licensing.ParseTier(tier)
			if err != nil {
				return err
			}
			spec := provisioning.TenantSpec{
				Name:     name,
				Tier:     parsedTier,
				AIActive: aiActive,
				Owner: provisioning.UserSpec{
					Email: ownerEmail,
					Name:  ownerName,
					Role:  auth.RoleOwner,
				},
			}
			if billing != "" {
				mode, err := licensing.ParseBillingMode(billing)
				if err != nil {
					return err
				}
				spec.AIBillingMode = mode
			}
			if cmd.Flags().Changed("max-users") {
				spec.MaxUsers = &maxUsers
			}
			if cmd.Flags().Changed("storage-gb") {
				spec.StorageGB = &storageGB
			}
			if cmd.Flags().Changed("ai-quota") {
				spec.AIQuotaMax = &aiQuota
			}

			pass, err := promptPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			spec.Owner.Password = pass

			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				tenant, owner, err := env.provisioning.Provision(ctx, spec)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Tenant %s (%s, %s tier)\n", tenant.ID, tenant.Name, tenant.Tier)
				fmt.Fprintf(out, "Owner  %s <%s>\n", owner.ID, owner.Email)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "firm name")
	f.StringVar(&tier, "tier", string(licensing.TierBase), "subscription tier (base, pro, enterprise)")
	f.StringVar(&ownerEmail, "owner-email", "", "owner email address")
	f.StringVar(&ownerName, "owner-name", "", "owner display name")
	f.BoolVar(&aiActive, "ai", false, "activate the AI add-on")
	f.StringVar(&billing, "ai-billing", "", "AI billing mode (fixed, pay_per_use)")
	f.Int64Var(&aiQuota, "ai-quota", 0, "AI actions per period (defaults to the tier quota)")
	f.IntVar(&maxUsers, "max-users", 0, "seat limit override, 0 for unlimited")
	f.IntVar(&storageGB, "storage-gb", 0, "document storage override in GB")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner-email")
	_ = cmd.MarkFlagRequired("owner-name")
	return cmd
}

func newTenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List firms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				tenants, err := env.provisioning.List(ctx)
				if err != nil {
					return err
				}
				printTenants(cmd, tenants)
				return nil
			})
		},
	}
}

func printTenants(cmd *cobra.Command, tenants []*models.Tenant) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIER\tACTIVE\tAI\tAI USAGE")
	for _, t := range tenants {
		ai := "off"
		usageCol := "-"
		if t.AIActive {
			ai = string(t.AIBillingMode)
			if t.AIBillingMode == licensing.BillingPayPerUse {
				usageCol = fmt.Sprintf("%d", t.AIQuotaUsed)
			} else {
				usageCol = fmt.Sprintf("%d/%d", t.AIQuotaUsed, t.AIQuotaMax)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", t.ID, t.Name, t.Tier, t.Active, ai, usageCol)
	}
	_ = w.Flush()
}

func newTenantSetTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <tenant-id> <tier>",
		Short: "Change a firm's subscription tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := licensing.ParseTier(args[1])
			if err != nil {
				return err
			}
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				tenant, err := env.provisioning.ChangeTier(ctx, args[0], tier)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is now on the %s tier (%s users, %d GB)\n",
					tenant.ID, tenant.Tier, seats(tenant.MaxUsers), tenant.StorageGB)
				return nil
			})
		},
	}
}

func newTenantDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <tenant-id>",
		Short: "Deactivate a firm; its users can no longer sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				tenant, err := env.provisioning.Deactivate(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deactivated\n", tenant.ID)
				return nil
			})
		},
	}
}

func newUserCmd() *cobra.Command {
	var tenantID, email, name, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a user to a firm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			pass, err := promptPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				user, err := env.provisioning.CreateUser(ctx, tenantID, provisioning.UserSpec{
					Email:    email,
					Name:     name,
					Password: pass,
					Role:     parsedRole,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s <%s> added as %s\n", user.ID, user.Email, user.Role)
				return nil
			})
		},
	}
	f := create.Flags()
	f.StringVar(&tenantID, "tenant", "", "tenant id")
	f.StringVar(&email, "email", "", "email address")
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&role, "role", string(auth.RoleLawyer), "role (owner, admin, lawyer, assistant)")
	_ = create.MarkFlagRequired("tenant")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(create)
	return cmd
}

func newQuotaCmd() *cobra.Command {
	reset := &cobra.Command{
		Use:   "reset <tenant-id>",
		Short: "Start a new AI billing period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				if _, err := env.provisioning.Get(ctx, args[0]); err != nil {
					return err
				}
				start, err := env.accountant.ResetPeriod(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "AI quota for %s reset; period starts %s\n", args[0], start.Format("2006-01-02 15:04:05Z07:00"))
				return nil
			})
		},
	}
	reconcile := &cobra.Command{
		Use:   "reconcile <tenant-id>",
		Short: "Compare the AI counter with the usage log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, env *adminEnv) error {
				rec, err := env.accountant.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Counter:          %d\n", rec.Counter)
				fmt.Fprintf(out, "Logged successes: %d\n", rec.LoggedSuccesses)
				if rec.Consistent {
					fmt.Fprintln(out, "Consistent")
					return nil
				}
				return fmt.Errorf("counter drifted from usage log by %d", rec.Drift)
			})
		},
	}

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and reset AI quotas",
	}
	cmd.AddCommand(reset, reconcile)
	return cmd
}

func newCatalogCmd() *cobra.Command {
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the tier catalog and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := licensing.Default()
			if err := catalog.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tier := range catalog.Tiers() {
				caps, _ := catalog.CapabilitiesOf(tier)
				features := make([]string, 0, len(caps.Features))
				for _, f := range catalog.Features() {
					if caps.Has(f) {
						features = append(features, f)
					}
				}
				fmt.Fprintf(out, "%-10s users=%s storage=%dGB ai_quota=%d features=%s\n",
					tier, seats(caps.MaxUsers), caps.StorageGB, caps.DefaultAIQuota, strings.Join(features, ","))
			}
			fmt.Fprintf(out, "%d modules, tier order is consistent\n", len(catalog.Modules()))
			return nil
		},
	}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Tier catalog tools",
	}
	cmd.AddCommand(check)
	return cmd
}

func seats(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
