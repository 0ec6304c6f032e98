// acodactl is the operator CLI for accounts, plans, usage and memory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/acoda/backend/internal/app"
	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	accountService "github.com/zhouzirui/acoda/backend/internal/service/account"
	memoryService "github.com/zhouzirui/acoda/backend/internal/service/memory"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(loadEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

// env 是每条命令共享的存储与服务
type env struct {
	store    app.StoreHandle
	accounts *accountService.Service
	memory   *memoryService.Service
}

func (e *env) Close() error {
	return e.store.Close()
}

type envLoader func(ctx context.Context) (*env, error)

func loadEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Log.Level, "text")

	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return newEnv(st, cfg), nil
}

func newEnv(st app.StoreHandle, cfg *config.Config) *env {
	return &env{
		store: st,
		accounts: accountService.NewService(st, accountService.Config{
			DailyLimit: cfg.Usage.FreeDailyLimit,
			Location:   cfg.Usage.Location,
		}),
		memory: memoryService.NewService(st, memoryService.Config{
			FreeRetention: cfg.Memory.FreeRetention,
			ProRetention:  cfg.Memory.ProRetention,
		}),
	}
}

func newRootCmd(load envLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "acodactl",
		Short:         "Operate an Acoda backend database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// withEnv 打开存储并在命令结束后关闭
	withEnv := func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			return run(cmd, e, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: withEnv(func(cmd *cobra.Command, _ *env, _ []string) error {
				// 打开 SQL 存储时已执行迁移
				fmt.Fprintln(cmd.OutOrStdout(), "migrations up to date")
				return nil
			}),
		},
		newUserCmd(withEnv),
		newPlanCmd(withEnv),
		newUsageCmd(withEnv),
		newMemoryCmd(withEnv),
	)
	return root
}

type envWrapper func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error

func newUserCmd(withEnv envWrapper) *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a FREE user",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
			u, err := e.accounts.CreateUser(cmd.Context(), email)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		}),
	}
	create.Flags().StringVar(&email, "email", "", "optional email address")

	user.AddCommand(
		create,
		&cobra.Command{
			Use:   "show <user-id>",
			Short: "Print a user",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				u, err := e.accounts.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), u)
			}),
		},
		&cobra.Command{
			Use:   "erase <user-id>",
			Short: "Delete a user with sessions, usage and memories",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				if err := e.accounts.DeleteUserData(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "erased %s\n", args[0])
				return nil
			}),
		},
	)
	return user
}

func newPlanCmd(withEnv envWrapper) *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage subscription plans"}
	plan.AddCommand(&cobra.Command{
		Use:   "set <user-id> <FREE|PRO>",
		Short: "Override a user's plan",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			p, ok := account.ParsePlan(args[1])
			if !ok {
				return fmt.Errorf("%w: %q", accountService.ErrInvalidPlan, args[1])
			}
			if err := e.accounts.UpdatePlan(cmd.Context(), args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], p)
			return nil
		}),
	})
	return plan
}

func newUsageCmd(withEnv envWrapper) *cobra.Command {
	usage := &cobra.Command{Use: "usage", Short: "Inspect voice usage"}
	usage.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show today's voice usage",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			p, err := e.accounts.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := e.accounts.CheckVoiceUsage(ctx, args[0], p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	})
	return usage
}

func newMemoryCmd(withEnv envWrapper) *cobra.Command {
	memory := &cobra.Command{Use: "memory", Short: "Inspect conversation memory"}
	memory.AddCommand(
		&cobra.Command{
			Use:   "show <user-id>",
			Short: "Print the active summary",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				summary, err := e.memory.GetSummary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear <user-id>",
			Short: "Delete every summary for a user",
			Args:  cobra.ExactArgs(1),
			RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
				if err := e.memory.Clear(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared memory for %s\n", args[0])
				return nil
			}),
		},
	)
	return memory
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
