// =============================================================================
// Roundtable 主入口
// =============================================================================
// 多参与者圆桌对话调度器: 创建会话, 串行驱动回合, 直到终态
//
// 使用方法:
//
//	roundtable run --topic "..."                       # 创建并运行会话
//	roundtable run --config config.yaml --topic "..."  # 指定配置文件
//	roundtable seed                                    # 写入内置人设
//	roundtable version                                 # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/cancel"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/dialogue"
	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers/deepseek"
	"github.com/BaSui01/roundtable/llm/providers/mock"
	"github.com/BaSui01/roundtable/llm/providers/openai"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runSession(os.Args[2:])
	case "seed":
		runSeed(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🗣️ run 命令
// =============================================================================

func runSession(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	topic := fs.String("topic", "", "Discussion topic")
	rounds := fs.Int("rounds", 0, "Round budget for this session (0 = config default)")
	metricsAddr := fs.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	fs.Parse(args)

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "--topic is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Roundtable",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 数据库与连接池
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to configure connection pool", zap.Error(err))
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := pool.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("Database unreachable", zap.Error(err))
	}
	pingCancel()

	st, err := store.NewGormStore(pool, logger)
	if err != nil {
		logger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	ctx := context.Background()
	if err := store.SeedPersonas(ctx, db); err != nil {
		logger.Fatal("Failed to seed personas", zap.Error(err))
	}

	// 指标
	registerer := prometheus.DefaultRegisterer
	collector := metrics.NewCollector("roundtable", registerer)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	scheduler := dialogue.NewScheduler(st,
		buildProviders(cfg, logger),
		buildCancelRegistry(cfg, logger),
		buildTokenizer(cfg),
		cfg.Dialogue, collector, logger)

	sess, err := scheduler.CreateSession(ctx, 0, *topic, *rounds)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}
	logger.Info("Session created", zap.Uint64("session_id", sess.ID))

	// SIGINT / SIGTERM 触发一次停止请求, 回合循环在检查点让位.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Signal received, stopping session", zap.String("signal", sig.String()))
		if err := scheduler.StopSession(context.Background(), sess.ID, "interrupted by signal"); err != nil {
			logger.Error("Failed to stop session", zap.Error(err))
		}
	}()

	final, err := scheduler.StartSession(ctx, sess.ID, func(msg *types.Message, round int) {
		fmt.Printf("[round %d] %s: %s\n\n", round, msg.AuthorName, msg.Content)
	})
	if err != nil {
		logger.Fatal("Session run failed", zap.Error(err))
	}
	logger.Info("Roundtable stopped",
		zap.String("status", string(final.Status)),
		zap.Int("rounds", final.CurrentRound))
}

// =============================================================================
// 🧩 装配
// =============================================================================

func buildProviders(cfg *config.Config, logger *zap.Logger) *llm.ProviderRegistry {
	registry := llm.NewProviderRegistry()
	if cfg.Providers.OpenAI.Enabled {
		registry.Register(openai.New(openai.Config{
			APIKey:            cfg.Providers.OpenAI.APIKey,
			BaseURL:           cfg.Providers.OpenAI.BaseURL,
			Model:             cfg.Providers.OpenAI.Model,
			RequestsPerSecond: cfg.Providers.OpenAI.RequestsPerSecond,
		}, logger))
	}
	if cfg.Providers.DeepSeek.Enabled {
		registry.Register(deepseek.New(deepseek.Config{
			APIKey:            cfg.Providers.DeepSeek.APIKey,
			BaseURL:           cfg.Providers.DeepSeek.BaseURL,
			Model:             cfg.Providers.DeepSeek.Model,
			RequestsPerSecond: cfg.Providers.DeepSeek.RequestsPerSecond,
		}, logger))
	}
	if cfg.Providers.Mock {
		registry.Register(mock.New("mock"))
		registry.Register(mock.New("mock2"))
	}
	logger.Info("Providers registered", zap.Strings("providers", registry.NamesSorted()))
	return registry
}

func buildCancelRegistry(cfg *config.Config, logger *zap.Logger) cancel.Registry {
	if !cfg.Redis.Enabled {
		return cancel.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cancel.NewRedis(client, 0, logger)
}

func buildTokenizer(cfg *config.Config) tokenizer.Tokenizer {
	if cfg.Dialogue.Tokenizer == "tiktoken" {
		return tokenizer.NewTiktoken("")
	}
	return tokenizer.NewEstimator()
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics endpoint failed", zap.Error(err))
	}
}

// =============================================================================
// 🌱 seed 命令
// =============================================================================

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure connection pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	if _, err := store.NewGormStore(pool, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to migrate schema: %v\n", err)
		os.Exit(1)
	}
	if err := store.SeedPersonas(context.Background(), db); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed personas: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Personas seeded")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Roundtable %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Roundtable - Multi-participant dialogue scheduler

Usage:
  roundtable <command> [options]

Commands:
  run       Create a session and drive it to a terminal status
  seed      Insert the built-in personas
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>        Path to configuration file (YAML)
  --topic <text>         Discussion topic (required)
  --rounds <n>           Round budget for this session (0 = config default)
  --metrics-addr <addr>  Expose Prometheus metrics on this address`)
}
