// outboxctl は端末側の送信キューを操作する
//
//	outboxctl [-config path] enqueue [-f draft.json]
//	outboxctl sync | status | run [-metrics-addr :9102]
//	outboxctl retry <key>
//	outboxctl cleanup [-older-than 168h]
//	outboxctl token -actor t1 -role TEACHER
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/outbox"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/config"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/observability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "outboxctl:", err)
		os.Exit(1)
	}
}

func usage() error {
	return errors.New("usage: outboxctl [-config path] <enqueue|sync|status|retry|cleanup|run|token> [flags]")
}

func run(args []string) error {
	root := flag.NewFlagSet("outboxctl", flag.ContinueOnError)
	cfgPath := root.String("config", config.DefaultPath, "config file")
	if err := root.Parse(args); err != nil {
		return err
	}
	if root.NArg() == 0 {
		return usage()
	}
	cmd, rest := root.Arg(0), root.Args()[1:]

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	// token は DB を開かない
	if cmd == "token" {
		return cmdToken(cfg, rest)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	q, err := openQueue(cfg.Outbox)
	if err != nil {
		return err
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := outbox.New(q,
		outbox.NewHTTPTransport(cfg.Outbox.ServerURL, cfg.Outbox.Token, time.Duration(cfg.Outbox.AttemptTimeoutSec)*time.Second),
		cfg.Outbox.ActorID, outbox.OptionsFrom(cfg.Outbox), outbox.WithLogger(log))

	switch cmd {
	case "enqueue":
		return cmdEnqueue(ctx, o, rest)
	case "sync":
		rep, err := o.SyncAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(rep)
	case "status":
		st, err := o.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	case "retry":
		if len(rest) != 1 {
			return errors.New("usage: outboxctl retry <key>")
		}
		e, err := o.Retry(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(e)
	case "cleanup":
		fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
		older := fs.Duration("older-than", 7*24*time.Hour, "remove SYNCED events older than this")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		n, err := o.Cleanup(ctx, *older)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d synced events\n", n)
		return nil
	case "run":
		return cmdRun(ctx, cfg, q, log, rest)
	default:
		return usage()
	}
}

func openQueue(c config.OutboxConfig) (outbox.Queue, error) {
	switch strings.ToLower(c.Backend) {
	case "badger":
		return outbox.OpenBadger(c.Path)
	default:
		return outbox.OpenSQLite(c.Path)
	}
}

// enqueue: Draft の JSON を -f か標準入力から読む
func cmdEnqueue(ctx context.Context, o *outbox.Outbox, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	file := fs.String("f", "-", "draft JSON file (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	var d outbox.Draft
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}
	e, err := o.Enqueue(ctx, d)
	if err != nil {
		return err
	}
	fmt.Println(e.Key)
	return nil
}

// run: 常駐して定期的に送る。-metrics-addr を付けると /metrics を出す
func cmdRun(ctx context.Context, cfg *config.Config, q outbox.Queue, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	addr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []outbox.Option
	opts = append(opts, outbox.WithLogger(log))
	if *addr != "" {
		m := observability.NewOutboxMetrics()
		opts = append(opts, outbox.WithMetrics(m))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	o := outbox.New(q,
		outbox.NewHTTPTransport(cfg.Outbox.ServerURL, cfg.Outbox.Token, time.Duration(cfg.Outbox.AttemptTimeoutSec)*time.Second),
		cfg.Outbox.ActorID, outbox.OptionsFrom(cfg.Outbox), opts...)
	log.Info("outbox worker started", "server", cfg.Outbox.ServerURL, "backend", cfg.Outbox.Backend)
	return o.Run(ctx)
}

// token: 開発用。サーバと同じ秘密鍵で HS256 トークンを作る
func cmdToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	actor := fs.String("actor", cfg.Outbox.ActorID, "actor id (sub)")
	role := fs.String("role", "TEACHER", "role claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Mode != "dev" {
		return errors.New("token is only available in dev mode")
	}
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-secret"
	}
	if *actor == "" {
		return errors.New("-actor is required")
	}
	tok, err := auth.IssueToken([]byte(secret), *actor, strings.ToUpper(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
