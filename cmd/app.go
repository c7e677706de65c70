package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/handlers"
	grpcserver "github.com/Gopher0727/GroupChat/internal/pkg/grpc"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/routers"
	"github.com/Gopher0727/GroupChat/internal/services"
	"github.com/Gopher0727/GroupChat/internal/storage"
	"github.com/Gopher0727/GroupChat/internal/utils"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/pkg/mq"
	"github.com/Gopher0727/GroupChat/pkg/ws"
	"github.com/Gopher0727/GroupChat/utils/ratelimit"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

// app 持有进程内全部组件, Stop 按依赖逆序关闭
type app struct {
	cfg *config.Config
	log *logger.Logger

	db          *gorm.DB
	mongoClient *mongo.Client
	redis       *redis.Client
	kafka       *mq.KafkaProducer

	hub        *ws.Hub
	pool       *utils.WorkerPool
	reconciler *services.Reconciler
	httpServer *http.Server
	grpcServer *grpcserver.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

type stores struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	st, err := a.openStores()
	if err != nil {
		return nil, err
	}

	// Redis 可选: 用户资料缓存 + 发送限流
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		a.redis, err = storage.InitRedis(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
		if err != nil {
			return nil, err
		}
		st.users = repositories.NewCachedUserRepository(st.users, a.redis)
		limiter = ratelimit.NewWindowLimiter(a.redis, log.Named("ratelimit").Logger, cfg.RateLimit.FailOpen)
	}

	hubOpts := ws.Options{
		Shards:     cfg.Hub.Shards,
		QueueSize:  cfg.Hub.QueueSize,
		SendBuffer: cfg.Hub.SendBuffer,
	}
	if cfg.Kafka.Enabled {
		a.kafka, err = mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("kafka").Logger)
		if err != nil {
			return nil, err
		}
		hubOpts.Sink = a.kafka
	}
	a.hub = ws.NewHub(hubOpts, log)

	ids, err := snowflake.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	userService := services.NewUserService(st.users, tokens, ids, log)
	roomService := services.NewRoomService(st.rooms, a.hub, ids, log)
	messageService := services.NewMessageService(st.rooms, st.messages, userService, a.hub, ids, log, services.MessageOptions{
		RestrictUnsendToAuthor: cfg.Chat.RestrictUnsendToAuthor,
	})
	a.reconciler = services.NewReconciler(st.rooms, cfg.Chat.ReconcileInterval, log)

	blobs, err := storage.NewLocalBlobStore(cfg.Server.UploadDir, "/uploads")
	if err != nil {
		return nil, err
	}

	a.pool = utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, log.Named("pool"))

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	routers.SetupRoutes(engine, routers.Deps{
		Auth:        handlers.NewAuthHandler(userService, log),
		Rooms:       handlers.NewRoomHandler(roomService, log),
		Messages:    handlers.NewMessageHandler(messageService, log),
		Files:       handlers.NewFileHandler(blobs, log),
		Hub:         a.hub,
		Verifier:    tokens,
		Pool:        a.pool,
		Limiter:     limiter,
		MessageRule: ratelimit.PerMinute(cfg.RateLimit.MessagePerMinute),
		UploadDir:   cfg.Server.UploadDir,
		Log:         log,
	})
	a.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: engine,
	}

	if cfg.GRPC.Enabled {
		a.grpcServer, err = grpcserver.NewServer(cfg.GRPC.Address, log)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// openStores 按 store.driver 选择持久化后端
func (a *app) openStores() (*stores, error) {
	cfg := a.cfg
	debug := cfg.Server.Mode == gin.DebugMode

	switch cfg.Store.Driver {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		client, db, err := storage.InitMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		a.mongoClient = client
		return &stores{
			rooms:    repositories.NewMongoRoomRepository(db),
			messages: repositories.NewMongoMessageRepository(db),
			users:    repositories.NewMongoUserRepository(db),
		}, nil

	case "postgres":
		db, err := storage.InitPostgres(cfg.BuildPostgresDSN(), cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns, debug)
		if err != nil {
			return nil, err
		}
		a.db = db

	default:
		db, err := storage.InitSQLite(cfg.SQLite.Path, debug)
		if err != nil {
			return nil, err
		}
		a.db = db
	}

	return &stores{
		rooms:    repositories.NewRoomRepository(a.db),
		messages: repositories.NewMessageRepository(a.db),
		users:    repositories.NewUserRepository(a.db),
	}, nil
}

// Start 启动后台组件; 任一服务异常退出时 ctx 被取消
func (a *app) Start() {
	a.hub.Start()
	a.pool.Start()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.grpcServer != nil {
		g.Go(func() error {
			if err := a.grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return a.reconciler.Run(gctx)
	})
}

// Wait 返回后台组件的首个错误
func (a *app) Wait() error {
	return a.group.Wait()
}

// Stop 先停止入口, 再排空推送与协程池, 最后释放存储连接
func (a *app) Stop(ctx context.Context) error {
	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	a.pool.Stop()
	a.hub.Stop()

	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database close: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
