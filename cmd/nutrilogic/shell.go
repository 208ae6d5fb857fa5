package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nutrilogic/datacache/internal/app"
)

const shellHelp = `Commands:
  list [status=<s>] [active=1|0|all] [search=<text>]   list children
  dashboard                                            dashboard summary
  priority                                             children needing follow-up
  get <id>                                             show one child
  create name=.. gender=L|P birth=YYYY-MM-DD parent=<id> [weight=..] [height=..] [status=..]
  update <id> field=value...                           change a child
  delete <id>                                          remove a child
  stats                                                cache counters
  invalidate <key>...                                  drop cache entries
  clear                                                drop the whole cache
  help                                                 this text
  quit                                                 log out and exit`

var errQuit = errors.New("quit")

func shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session; the cache lives until you quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, cleanup, err := initializeApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			if cfg.Metrics.Addr != "" {
				stop, err := serveMetrics(a, cfg.Metrics.Addr)
				if err != nil {
					return err
				}
				defer stop()
			}
			return runShell(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the shell runs")
	return cmd
}

func serveMetrics(a *app.App, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server")
		}
	}()
	a.Logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// runShell logs in, then executes one command per input line until quit or EOF.
func runShell(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	user, pass := a.Config.API.Email, a.Config.API.Password
	if user == "" {
		user, _ = prompt("email: ")
	}
	if pass == "" {
		pass, _ = prompt("password: ")
	}
	s, err := a.Login(ctx, user, pass)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Logout(context.Background(), s); err != nil {
			a.Logger.Warn().Err(err).Msg("logout")
		}
	}()
	fmt.Fprintf(out, "Logged in as %s (%s). Cache TTL %s. Type help for commands.\n", s.User.Name, s.Role, s.Store.TTL())

	for ctx.Err() == nil {
		line, ok := prompt("nutrilogic> ")
		if !ok {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if line == "" {
			continue
		}
		err := execLine(ctx, s, line, out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return nil
}

func execLine(ctx context.Context, s *app.Session, line string, out io.Writer) error {
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(out, shellHelp)
	case "list", "ls":
		fields, err := parseFields(rest)
		if err != nil {
			return err
		}
		filter, err := parseFilter(fields)
		if err != nil {
			return err
		}
		res, err := s.Children.List(ctx, filter)
		if err != nil {
			return err
		}
		printChildren(out, res.Value, res.FromCache)
	case "dashboard":
		res, err := s.Children.Dashboard(ctx)
		if err != nil {
			return err
		}
		printDashboard(out, res.Value, res.FromCache)
	case "priority":
		res, err := s.Children.Priority(ctx)
		if err != nil {
			return err
		}
		printChildren(out, res.Value, res.FromCache)
	case "get":
		if len(rest) != 1 {
			return errors.New("usage: get <id>")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		res, err := s.Children.Get(ctx, id)
		if err != nil {
			return err
		}
		printChild(out, res.Value, res.FromCache)
	case "create":
		fields, err := parseFields(rest)
		if err != nil {
			return err
		}
		in, err := parseChildInput(fields)
		if err != nil {
			return err
		}
		c, err := s.Children.Create(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created child %d\n", c.ID)
	case "update":
		if len(rest) < 2 {
			return errors.New("usage: update <id> field=value...")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		fields, err := parseFields(rest[1:])
		if err != nil {
			return err
		}
		in, err := parseChildInput(fields)
		if err != nil {
			return err
		}
		if _, err := s.Children.Update(ctx, id, in); err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated child %d\n", id)
	case "delete", "rm":
		if len(rest) != 1 {
			return errors.New("usage: delete <id>")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if err := s.Children.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted child %d\n", id)
	case "stats":
		printStats(out, s.Store.Stats(), s.Store.Len(ctx))
	case "invalidate":
		if len(rest) == 0 {
			return errors.New("usage: invalidate <key>...")
		}
		s.Store.Invalidate(ctx, rest...)
		fmt.Fprintf(out, "Invalidated %d key(s)\n", len(rest))
	case "clear":
		if err := s.Store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cache cleared")
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}
