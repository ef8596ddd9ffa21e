package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/phishtrap/internal/auth"
	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/coach"
	"github.com/pavelanni/phishtrap/internal/coach/prompts"
	"github.com/pavelanni/phishtrap/internal/handler"
	appI18n "github.com/pavelanni/phishtrap/internal/i18n"
	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/quiz"
	"github.com/pavelanni/phishtrap/internal/snapshot"
	"github.com/pavelanni/phishtrap/internal/store"
	"github.com/pavelanni/phishtrap/internal/trap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phishtrap",
		Short: "Security awareness quiz and phishing trap server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "phishtrap.db", "SQLite database path")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /training)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.IntP("num-questions", "n", 10, "Questions per quiz attempt")
	f.Bool("shuffle-emails", false, "Randomize the simulation email order")
	f.StringP("questions", "q", "", "Questions YAML file replacing the built-in catalog")

	f.Duration("trap-min-delay", trap.DefaultMinDelay, "Minimum delay before the phishing pop-up")
	f.Duration("trap-max-delay", trap.DefaultMaxDelay, "Maximum delay before the phishing pop-up")
	f.String("trap-message", "", "Pop-up text (defaults to the localized alert)")
	f.String("decoy-path", "/decoy/login", "Path of the mock login page")

	f.String("jwt-secret", "", "Session signing key (generated and stored in the database when empty)")
	f.Duration("session-ttl", auth.DefaultTokenTTL, "Session token lifetime")
	f.String("admin-email", "", "Email of the admin account")
	f.String("admin-password", "", "Initial admin password (or set PHISHTRAP_ADMIN_PASSWORD)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")

	f.String("redis-addr", "", "Redis address for quiz snapshots (in-memory when empty)")
	f.Duration("snapshot-ttl", 2*time.Hour, "Lifetime of saved quiz progress")

	f.String("llm-url", "", "OpenAI-compatible API base URL (coach disabled when empty)")
	f.String("llm-key", "", "API key for the coach model")
	f.String("llm-model", "llama3.2", "Coach model name")
	f.String("coach-prompt", string(prompts.PromptConcise), "Coach prompt variant (concise, detailed)")

	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz results and trap events as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "phishtrap.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PHISHTRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("phishtrap")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/phishtrap")
	v.AddConfigPath("/etc/phishtrap")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	adminEmail := v.GetString("admin-email")
	if err := seedAdmin(ctx, db, adminEmail, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	b, err := loadBank(v.GetString("questions"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	key := []byte(v.GetString("jwt-secret"))
	if len(key) == 0 {
		if key, err = db.SigningKey(ctx); err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
	}
	tokens := auth.NewTokens(key, v.GetDuration("session-ttl"))

	snaps, closeSnaps, err := openSnapshots(ctx, v.GetString("redis-addr"), v.GetDuration("snapshot-ttl"))
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer closeSnaps()

	var coachClient *coach.Client
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		variant := prompts.PromptVariant(strings.ToLower(strings.TrimSpace(v.GetString("coach-prompt"))))
		coachClient, err = coach.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return fmt.Errorf("create coach client: %w", err)
		}
		slog.Info("coach enabled", "url", llmURL, "model", v.GetString("llm-model"), "prompt", variant)
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		NumQuestions:  v.GetInt("num-questions"),
		ShuffleEmails: v.GetBool("shuffle-emails"),
		AdminEmail:    adminEmail,
		SecureCookies: v.GetBool("secure-cookies"),
		SessionTTL:    tokens.TTL(),
		TrapMinDelay:  v.GetDuration("trap-min-delay"),
		TrapMaxDelay:  v.GetDuration("trap-max-delay"),
		TrapMessage:   v.GetString("trap-message"),
		DecoyPath:     v.GetString("decoy-path"),
		BasePath:      basePath,
	}

	h, err := handler.New(db, b, snaps, tokens, coachClient, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"num_questions", cfg.NumQuestions,
		"questions_available", b.Size(),
		"trap_delay", fmt.Sprintf("%s-%s", cfg.TrapMinDelay, cfg.TrapMaxDelay),
		"base_path", basePath,
		"coach", coachClient != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadBank(path string) (*bank.Bank, error) {
	if path == "" {
		return bank.Default()
	}
	b, err := bank.LoadQuestionsFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded questions file", "path", path, "count", b.Size())
	return b, nil
}

// openSnapshots returns a Redis-backed store when addr is set, otherwise
// an in-process one.
func openSnapshots(ctx context.Context, addr string, ttl time.Duration) (quiz.SnapshotStore, func(), error) {
	if addr == "" {
		return snapshot.NewMemoryStore(ttl), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	slog.Info("using redis snapshots", "addr", addr, "ttl", ttl)
	return snapshot.NewRedisStore(client, ttl), func() { client.Close() }, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

// seedAdmin registers the admin account on first start. An existing
// account is left untouched.
func seedAdmin(ctx context.Context, db *store.Store, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	existing, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or PHISHTRAP_ADMIN_PASSWORD env var")
	}
	if _, err := auth.NewGateway(db, 0).Register(ctx, email, password); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded admin user", "email", email)
	return nil
}
