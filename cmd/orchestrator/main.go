package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/divinesense/internal/config"
	"github.com/hrygo/divinesense/internal/configresolver"
	"github.com/hrygo/divinesense/internal/dedup"
	"github.com/hrygo/divinesense/internal/embedding"
	"github.com/hrygo/divinesense/internal/generation"
	"github.com/hrygo/divinesense/internal/jobstore"
	"github.com/hrygo/divinesense/internal/llmclient"
	"github.com/hrygo/divinesense/internal/logging"
	"github.com/hrygo/divinesense/internal/memorystore"
	"github.com/hrygo/divinesense/internal/outbox"
	"github.com/hrygo/divinesense/internal/preprocess"
	"github.com/hrygo/divinesense/internal/promptctx"
	"github.com/hrygo/divinesense/internal/pubsub"
	"github.com/hrygo/divinesense/internal/queue"
	"github.com/hrygo/divinesense/internal/server"
	"github.com/hrygo/divinesense/internal/store/postgres"
	"github.com/hrygo/divinesense/internal/version"
)

// sweepInterval is how often the stuck-job recovery sweep and the
// pending-memory outbox drain run, per spec.md §7 and §4.9.
const sweepInterval = 2 * time.Minute

// outboxBatchSize bounds how many pending-memory rows one drain pass
// retries, per spec.md §4.9.
const outboxBatchSize = 100

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "An AI request orchestration core: dependency-aware preprocessing and LLM generation over a job DAG.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		cfg := &config.Config{
			Mode:     viper.GetString("mode"),
			Addr:     viper.GetString("addr"),
			Port:     viper.GetInt("port"),
			UnixSock: viper.GetString("unix-sock"),
			Driver:   viper.GetString("driver"),
			DSN:      viper.GetString("dsn"),
		}
		cfg.FromEnv()
		if err := cfg.Validate(); err != nil {
			slog.Error("invalid configuration", "err", err)
			os.Exit(1)
		}

		logger := logging.Setup(cfg.Mode, levelFor(cfg.Mode))
		slog.SetDefault(logger)
		logger.Info("orchestrator starting", "version", version.GetCurrentVersion(cfg.Mode))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		srv, cleanup, err := buildServer(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to build server", "err", err)
			cancel()
			os.Exit(1)
		}
		defer cleanup()

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)

		go func() {
			<-c
			logger.Info("shutdown signal received")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", "err", err)
			}
			cancel()
		}()

		printGreetings(cfg)

		if err := srv.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server stopped with error", "err", err)
			}
		}

		<-ctx.Done()
	},
}

// buildServer wires every component spec.md's all-in-one deployment mode
// needs and returns the HTTP surface ready to Start, plus a cleanup
// closure that stops the outbox drain and closes the result stream, the
// embedder and the database. The stuck-job sweeper stops when ctx is
// cancelled; the config resolver's and dedup cache's goroutines are not
// stopped by either.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	db, err := postgres.Open(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	embedder, embedderCleanup, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedder: %w", err)
	}

	memStore := memorystore.New(db, embedder)
	ob := outbox.New(db, memStore, 0)
	go ob.Run(ctx, sweepInterval, outboxBatchSize)

	broker := pubsub.NewInProcessBroker()
	resolver := configresolver.New(db, broker)

	chatClient := llmclient.New(llmclient.Config{
		BaseURL:            cfg.LLMBaseURL,
		APIKey:             cfg.LLMAPIKey,
		Timeout:            time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		TranscriptionModel: "whisper-1",
	})

	assembler := promptctx.NewAssembler(nil)

	resultStream, err := queue.NewResultStream(ctx, cfg.RedisAddr)
	if err != nil {
		embedderCleanup()
		return nil, nil, fmt.Errorf("open result stream: %w", err)
	}

	js := jobstore.New(db, 0)
	registry := server.NewJobRegistry()

	genWorker := generation.New(generation.Config{
		Jobs:      registry,
		Results:   js,
		ResultW:   js,
		Tracker:   js,
		Resolver:  resolver,
		Assembler: assembler,
		Chat:      chatClient,
		Memory:    memStore,
		MemQuery:  memStore,
		Embedder:  embedder,
		Publisher: resultStream,
		ModelName: cfg.LLMModel,
	})

	sweeper := generation.NewSweeper(js, js, js)
	go sweeper.Run(ctx, sweepInterval)

	visionResolver := preprocess.NewVisionModelResolver(cfg.LLMModel)
	audioWorker := preprocess.NewAudioWorker(chatClient)
	imageWorker := preprocess.NewImageWorker(chatClient, visionResolver)

	runner := server.NewSchedulerRunner(js, audioWorker, imageWorker, genWorker, cfg.LLMModel, registry)
	handler := server.NewHandler(ctx, dedup.New(), js, runner)

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	srv := server.New(addr, handler)

	cleanup := func() {
		ob.Stop()
		_ = resultStream.Close()
		embedderCleanup()
		_ = db.Close()
	}

	return srv, cleanup, nil
}

// buildEmbedder prefers the child-process embedding worker spec.md §4.5
// names as the primary path, falling back to the remote-provider degrade
// path when no worker binary is configured.
func buildEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generation.Embedder, func(), error) {
	if cfg.EmbeddingWorkerPath != "" {
		w := embedding.NewWorker(cfg.EmbeddingWorkerPath, logger)
		if err := w.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("start embedding worker: %w", err)
		}
		return w, func() { _ = w.Stop() }, nil
	}

	provider, err := embedding.NewProvider(&embedding.Config{
		BaseURL:        cfg.EmbeddingRemoteBaseURL,
		APIKey:         cfg.EmbeddingRemoteAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, nil, err
	}
	return provider, func() {}, nil
}

func levelFor(mode string) slog.Level {
	if mode == "prod" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 8088)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8088, "port of server")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to a unix socket (accepted but not used: the server listens on --addr and --port)")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (only postgres is supported)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka DSN)")

	bind := func(key string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}
	bind("mode")
	bind("addr")
	bind("port")
	bind("unix-sock")
	bind("driver")
	bind("dsn")

	viper.SetEnvPrefix("orch")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(cfg *config.Config) {
	fmt.Printf("orchestrator %s started successfully!\n", version.GetCurrentVersion(cfg.Mode))
	if cfg.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	if len(cfg.UnixSock) > 0 {
		fmt.Printf("Unix socket %s is not used; listening on TCP\n", cfg.UnixSock)
	}
	if len(cfg.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", cfg.Port)
		return
	}
	fmt.Printf("Server running on %s:%d\n", cfg.Addr, cfg.Port)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
