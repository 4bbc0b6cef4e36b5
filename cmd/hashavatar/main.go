package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/hashavatar/hashavatar/cmd/hashavatar/cli"
	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/app"
	"github.com/hashavatar/hashavatar/internal/auth"
	"github.com/hashavatar/hashavatar/internal/avatars"
	"github.com/hashavatar/hashavatar/internal/dashboard"
	"github.com/hashavatar/hashavatar/internal/kv"
	"github.com/hashavatar/hashavatar/internal/observability"
	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/resolver"
	"github.com/hashavatar/hashavatar/internal/shared"
	"github.com/hashavatar/hashavatar/internal/view"
	"github.com/hashavatar/hashavatar/jobs"
)

const usage = `usage: hashavatar [command]

commands:
  serve                         run the web server (default)
  hash [--json] <email>         print the identity hash of an email
  resolve [--json] [--avatar] <hash>
                                look up the profile for a hash
  account login <email>         sign the terminal session in
  account logout|whoami
  account avatar <url>
  account profile [--name N] [--bio B] [--location L] [--website W]
  jobs trigger <task> [key]     enqueue profiles:snapshot or profiles:restore
  jobs inspect                  print default queue statistics
`

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		os.Exit(serve(ctx))
	case "hash":
		os.Exit(runHash(args))
	case "resolve", "account", "jobs":
		os.Exit(runWithStore(ctx, command, args))
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context) int {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return 0
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	backend, err := kv.Open(ctx, cfg.KVOptions())
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("store close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := profiles.NewStore(backend, profiles.WithPlaceholder(cfg.Placeholder()), profiles.WithLogger(logger))
	accounts := account.NewManager(store, logger)
	if _, err := accounts.Restore(ctx); err != nil {
		logger.Warn("restore terminal session", slog.Any("error", err))
	}
	res := resolver.New(store, resolver.WithObserver(metrics))

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("load templates", slog.Any("error", err))
		return 1
	}

	sessionManager := shared.NewSessionManager(backend, "hashavatar_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authHandler := auth.NewHandler(logger, accounts, templates, sessionManager, csrfManager)
	dashboardHandler := dashboard.NewHandler(dashboard.Config{
		Logger:         logger,
		Accounts:       accounts,
		Templates:      templates,
		CSRF:           csrfManager,
		BaseURL:        cfg.PublicBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Uploads:        metrics,
	})
	avatarsHandler := avatars.NewHandler(logger, res, accounts, templates, csrfManager, cfg.PublicBaseURL)

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Accounts:         accounts,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		AvatarsHandler:   avatarsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	return 0
}

func runHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	baseURL := fs.String("base-url", envOr("PUBLIC_BASE_URL", "http://localhost:8080"), "public base URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return cli.HashCommand(cli.HashOptions{
		Email:      strings.Join(fs.Args(), " "),
		BaseURL:    *baseURL,
		JSONOutput: *jsonOut,
	})
}

// runWithStore runs the commands that need configuration and storage.
func runWithStore(ctx context.Context, command string, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	if command == "jobs" {
		return runJobs(ctx, cfg, args)
	}

	backend, err := kv.Open(ctx, cfg.KVOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = backend.Close() }()
	store := profiles.NewStore(backend, profiles.WithPlaceholder(cfg.Placeholder()), profiles.WithLogger(logger))

	switch command {
	case "resolve":
		return runResolve(ctx, store, args)
	default:
		return runAccount(ctx, account.NewManager(store, logger), args)
	}
}

func runResolve(ctx context.Context, store *profiles.Store, args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	avatarOnly := fs.Bool("avatar", false, "print only the avatar URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	resolveCLI, err := cli.NewResolveCLI(resolver.New(store))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return resolveCLI.ResolveCommand(ctx, cli.ResolveOptions{
		Hash:       fs.Arg(0),
		AvatarOnly: *avatarOnly,
		JSONOutput: *jsonOut,
	})
}

func runAccount(ctx context.Context, accounts *account.Manager, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	action, rest := args[0], args[1:]

	fs := flag.NewFlagSet("account "+action, flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	var fields profiles.Fields
	optional := map[string]**string{"name": &fields.Name, "bio": &fields.Bio, "location": &fields.Location, "website": &fields.Website}
	for name, dst := range optional {
		dst := dst
		fs.Func(name, "set the "+name+" field", func(v string) error {
			*dst = profiles.String(v)
			return nil
		})
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	opts := cli.AccountOptions{Action: action, Fields: fields, JSONOutput: *jsonOut}
	switch action {
	case "login":
		opts.Email = strings.Join(fs.Args(), " ")
	case "avatar":
		opts.AvatarURL = fs.Arg(0)
	}
	accountCLI, err := cli.NewAccountCLI(accounts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return accountCLI.Run(ctx, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(redisOpts(cfg), cfg.SnapshotRetention)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		infos, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, info := range infos {
			fmt.Printf("%s %s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown action %q\n", args[0])
		return 2
	}
	return 0
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
