package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examvault/internal/attempt"
	"github.com/pavelanni/examvault/internal/config"
	"github.com/pavelanni/examvault/internal/exam"
	"github.com/pavelanni/examvault/internal/handler"
	appI18n "github.com/pavelanni/examvault/internal/i18n"
	"github.com/pavelanni/examvault/internal/keys"
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/notify"
	"github.com/pavelanni/examvault/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examvault",
		Short: "Encrypted exam distribution with single-attempt scoring",
		PersistentPreRun: func(*cobra.Command, []string) {
			loadDotEnv()
		},
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), useraddCmd(), keygenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examvault --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	config.RegisterServeFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam's results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	config.RegisterDBFlags(f)
	f.String("exam-id", "", "Exam request ID (required)")
	f.Bool("analysis", false, "Include per-question answer analysis")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account",
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	config.RegisterDBFlags(f)
	f.String("email", "", "Login email (required)")
	f.String("name", "", "Display name (defaults to the email)")
	f.String("password", "", "Password (or set EXAMVAULT_PASSWORD)")
	f.String("role", string(model.UserRoleStudent), "Role (student, institute, admin)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh random key, e.g. for --jwt-secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := keys.Generate()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), k.String())
			return err
		},
	}
}

// loadDotEnv reads .env into the process environment before viper looks at it.
// Variables already set in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env", "error", err)
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	// Accepts debug, info, warn and error; anything else logs at info.
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}

	var h slog.Handler
	if strings.EqualFold(v.GetString("log-format"), "json") {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examvault")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examvault")
	v.AddConfigPath("/etc/examvault")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	cfg, err := config.FromViper(viperForCmd(cmd))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	repo, err := openRepository(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(ctx, repo, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	adapter, closeArtifacts, err := openArtifactStore(ctx, cfg.Artifact)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer closeArtifacts()

	sender, closeSender, err := openSender(cfg.Notify)
	if err != nil {
		return fmt.Errorf("open notification sender: %w", err)
	}
	defer closeSender()

	dispatcher := notify.NewDispatcher(sender, notify.Options{
		BatchSize:   cfg.Notify.BatchSize,
		Concurrency: cfg.Notify.Concurrency,
		Rate:        cfg.Notify.Rate,
	})
	composer := notify.NewComposer(cfg.Lang, cfg.PublicURL)

	exams := exam.NewService(repo, keys.NewCustodian(nil), adapter, dispatcher, composer)
	attempts := attempt.NewEngine(repo, adapter, dispatcher, composer)

	h, err := handler.New(repo, exams, attempts, handler.Config{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		TokenTTL:       cfg.Auth.TokenTTL,
		SecureCookies:  cfg.Auth.SecureCookies,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.CORS())
	r.Use(h.RateLimit())
	r.Use(appI18n.Middleware())
	h.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Artifact.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("starting server",
		"addr", cfg.Addr,
		"lang", cfg.Lang,
		"db_driver", cfg.DB.Driver,
		"artifact_backend", cfg.Artifact.Backend,
		"artifact_cache", cfg.Artifact.RedisURL != "",
		"notify_backend", cfg.Notify.Backend,
		"public_url", cfg.PublicURL,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	dbCfg, err := config.DBFromViper(v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	export, err := store.ExportExam(ctx, repo, v.GetString("exam-id"), v.GetBool("analysis"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
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
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported exam results", "exam_id", export.ExamID, "results", len(export.Results))
	return nil
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	dbCfg, err := config.DBFromViper(v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	u, err := handler.NewUser(v.GetString("email"), v.GetString("name"), v.GetString("password"),
		model.UserRole(strings.ToLower(v.GetString("role"))))
	if err != nil {
		return err
	}
	if err := repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("user %s already exists", u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s\n", u.Role, u.Email)
	return err
}

func seedAdmin(ctx context.Context, repo store.Repository, email, password string) error {
	count, err := repo.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMVAULT_ADMIN_PASSWORD env var")
	}

	u, err := handler.NewUser(email, "Administrator", password, model.UserRoleAdmin)
	if err != nil {
		return err
	}
	if err := repo.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "email", u.Email)
	return nil
}
