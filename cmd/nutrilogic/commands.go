package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nutrilogic/datacache/internal/app"
	"github.com/nutrilogic/datacache/internal/devserver"
	"github.com/nutrilogic/datacache/internal/logging"
)

func childrenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children",
		Short: "Query child records",
	}
	cmd.AddCommand(childrenListCmd())
	return cmd
}

func childrenListCmd() *cobra.Command {
	var status, active, search string
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List children",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(map[string]string{"status": status, "active": active, "search": search})
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
				res, err := s.Children.List(ctx, filter)
				if err != nil {
					return err
				}
				printChildren(cmd.OutOrStdout(), res.Value, res.FromCache)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Nutritional status filter")
	cmd.Flags().StringVar(&active, "active", "all", "Active filter: 1, 0 or all")
	cmd.Flags().StringVar(&search, "search", "", "Name search (never cached)")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
				res, err := s.Children.Dashboard(ctx)
				if err != nil {
					return err
				}
				printDashboard(cmd.OutOrStdout(), res.Value, res.FromCache)
				return nil
			})
		},
	}
}

func priorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority",
		Short: "List children needing follow-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
				res, err := s.Children.Priority(ctx)
				if err != nil {
					return err
				}
				printChildren(cmd.OutOrStdout(), res.Value, res.FromCache)
				return nil
			})
		},
	}
}

func childCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Read or modify one child record",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a child",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
					res, err := s.Children.Get(ctx, id)
					if err != nil {
						return err
					}
					printChild(cmd.OutOrStdout(), res.Value, res.FromCache)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create key=value...",
			Short: "Register a child (name, gender, birth, parent, weight, height, status)",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fields, err := parseFields(args)
				if err != nil {
					return err
				}
				in, err := parseChildInput(fields)
				if err != nil {
					return err
				}
				return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
					c, err := s.Children.Create(ctx, in)
					if err != nil {
						return err
					}
					printChild(cmd.OutOrStdout(), c, false)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "update <id> key=value...",
			Short: "Change a child's fields",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				fields, err := parseFields(args[1:])
				if err != nil {
					return err
				}
				in, err := parseChildInput(fields)
				if err != nil {
					return err
				}
				return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
					c, err := s.Children.Update(ctx, id, in)
					if err != nil {
						return err
					}
					printChild(cmd.OutOrStdout(), c, false)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete <id>",
			Short:   "Remove a child",
			Aliases: []string{"rm"},
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withSession(cmd, func(ctx context.Context, _ *app.App, s *app.Session) error {
					if err := s.Children.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted child %d\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

func devserverCmd() *cobra.Command {
	var addr, dsn string
	var seed bool
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local SQLite stand-in of the posyandu API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.DevServer.Addr = addr
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DevServer.DSN = dsn
			}
			if cmd.Flags().Changed("seed") {
				cfg.DevServer.Seed = seed
			}
			logger := logging.New(cfg.Log.Level, os.Stderr, cfg.Log.JSON)

			srv, err := devserver.New(cfg.DevServer.DSN, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if cfg.DevServer.Seed {
				kader, parent, err := srv.Seed(ctx)
				if err != nil {
					logger.Warn().Err(err).Msg("seeding skipped (database already seeded?)")
				} else {
					logger.Info().Str("kader", kader.Email).Str("parent", parent.Email).Msg("seeded accounts, password \"password\"")
				}
			}

			ln, err := net.Listen("tcp", cfg.DevServer.Addr)
			if err != nil {
				return err
			}
			httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			logger.Info().Str("addr", ln.Addr().String()).Msg("devserver listening")
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address")
	cmd.Flags().StringVar(&dsn, "dsn", "", "SQLite DSN")
	cmd.Flags().BoolVar(&seed, "seed", true, "Seed demo accounts and children")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
