package main

import (
	"context"
	"flag"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/config"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

func main() {
	configPath := flag.String("config", envOr("GROUPCHAT_CONFIG", "./config.toml"), "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	zlog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}

	a, err := newApp(cfg, zlog)
	if err != nil {
		zlog.Fatal("应用初始化失败", zap.Error(err))
	}
	a.Start()
	zlog.Info("groupchat started",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("grpc", cfg.GRPC.Enabled),
	)

	// 后台服务异常退出时直接结束进程
	go func() {
		if err := a.Wait(); err != nil {
			zlog.Fatal("server exited", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"groupchat": func(ctx context.Context) error {
				zlog.Info("graceful shutdown initiated")
				return a.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	zlog.Info("groupchat exited", zap.Int("code", exitCode))
	_ = zlog.Close()
	os.Exit(exitCode)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
