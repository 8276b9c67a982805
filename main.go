package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go-payment-service/bootstrap"
	"go-payment-service/common"
	"go-payment-service/config"
	"go-payment-service/database"
	"go-payment-service/domain"
	"go-payment-service/middleware"
	"go-payment-service/pkg/breaker"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/metrics"
	"go-payment-service/pkg/queue"
	enrollmentRepo "go-payment-service/service/enrollment/repository"
	enrollmentUC "go-payment-service/service/enrollment/usecase"
	notificationAPI "go-payment-service/service/notification/delivery/api"
	notificationUC "go-payment-service/service/notification/usecase"
	paymentAPI "go-payment-service/service/payment/delivery/api"
	paymentRepo "go-payment-service/service/payment/repository"
	paymentUC "go-payment-service/service/payment/usecase"
	upstreamClient "go-payment-service/service/upstream/client"
	"go-payment-service/validator"
)

const (
	modeAPI    = "api"
	modeWorker = "worker"
	modeAll    = "all"
)

func main() {
	// Parse command line flags
	envPath := flag.String("env-file", "", "ENV config file path")
	yamlPath := flag.String("config", "./config/config.yml", "YAML config file path")
	mode := flag.String("mode", modeAll, "what to run: api, worker or all")
	flag.Parse()

	if *mode != modeAPI && *mode != modeWorker && *mode != modeAll {
		panic(fmt.Errorf("unknown mode %q, expected api, worker or all", *mode))
	}

	configPaths := []string{*yamlPath}
	if *envPath == "" {
		fmt.Printf("App is starting with config path is '%s' and no load env file\n", *yamlPath)
	} else {
		fmt.Printf("App is starting with config path is '%s' and env path is '%s'...\n", *yamlPath, *envPath)
		configPaths = append(configPaths, *envPath)
	}

	cfg, err := config.Load(configPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	if err = config.Validate(cfg); err != nil {
		panic(fmt.Errorf("invalid config: %w", err))
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %w", err))
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Printf("Failed to sync logger: %v\n", err)
		}
	}()

	// Set logger for common package using adapter and as default logger
	common.SetLogger(common.NewLoggerAdapter(logger))
	log.SetDefaultLogger(logger)
	validator.RegisterValidatorWithGin()

	logger.Info("Application starting",
		log.String("name", cfg.App().Name()),
		log.String("version", cfg.App().Version()),
		log.String("environment", cfg.App().Environment()),
		log.String("config_path", *yamlPath),
		log.String("mode", *mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, logger); err != nil {
		logger.Error("Application stopped with error", log.Error(err))
		return
	}
	logger.Info("Application exited gracefully")
}

func run(ctx context.Context, cfg config.Config, mode string, logger log.Logger) error {
	loggerAdapter := common.NewLoggerAdapter(logger)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	db, err := database.Connect(cfg.Database(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err = database.MigrateDB(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Database connected and migrated successfully")

	redisConfig := bootstrap.RedisCacheConfig(cfg.Redis())
	rdb := cache.NewRedisConn(redisConfig)
	redisCache, err := cache.NewRedisCache(rdb, redisConfig, loggerAdapter)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCache.Close()

	store := bootstrap.NewResourceCache(cfg.Cache(), logger, collector)
	defer store.Close()
	breakers := bootstrap.NewBreakers(cfg.Breaker(), logger, collector)

	jwtProvider := common.NewJWTProvider(cfg.App())

	courseConn, err := upstreamClient.Dial(cfg.Upstreams().CourseServiceAddr(), jwtProvider)
	if err != nil {
		return fmt.Errorf("failed to create course service client: %w", err)
	}
	defer courseConn.Close()
	userConn, err := upstreamClient.Dial(cfg.Upstreams().UserServiceAddr(), jwtProvider)
	if err != nil {
		return fmt.Errorf("failed to create user service client: %w", err)
	}
	defer userConn.Close()

	catalog := upstreamClient.NewCourseRPCClient(courseConn,
		bootstrap.NewResilientClient(domain.UpstreamCourse, cfg, store, breakers, logger, collector))
	users := upstreamClient.NewUserRPCClient(userConn,
		bootstrap.NewResilientClient(domain.UpstreamUser, cfg, store, breakers, logger, collector))

	notificationQueue, err := bootstrap.NewQueue(cfg.Queue(), rdb, logger)
	if err != nil {
		return fmt.Errorf("failed to create notification queue: %w", err)
	}
	defer notificationQueue.Close()
	producer := notificationUC.NewProducer(notificationQueue, cfg.Queue().RetryAttempts(), collector, logger)

	g, gctx := errgroup.WithContext(ctx)

	if mode == modeAPI || mode == modeAll {
		srv, err := newHTTPServer(cfg, db, redisCache, store, breakers, catalog, producer, notificationQueue, jwtProvider, collector, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", log.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server().ShutdownTimeout())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if mode == modeWorker || mode == modeAll {
		consumer, err := newConsumer(gctx, cfg, notificationQueue, users, catalog, collector, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	return g.Wait()
}

func newHTTPServer(
	cfg config.Config,
	db *gorm.DB,
	redisCache cache.Client,
	store *cache.MemoryCache,
	breakers *breaker.Registry,
	catalog *upstreamClient.CourseRPCClient,
	producer *notificationUC.Producer,
	notificationQueue queue.Queue,
	jwtProvider *common.JWTProvider,
	collector *metrics.Collector,
	logger log.Logger,
) (*http.Server, error) {
	uploader, err := bootstrap.NewUploader(cfg.Upload())
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}

	txManager := database.NewTxManager(db)
	enrollmentUsecase := enrollmentUC.NewEnrollmentUsecase(enrollmentRepo.NewEnrollmentRepository(db), txManager, store, logger)
	paymentUsecase := paymentUC.NewPaymentUsecase(paymentUC.Dependencies{
		Repo:       paymentRepo.NewPaymentRepository(db),
		Tx:         txManager,
		Enrollment: enrollmentUsecase,
		Catalog:    catalog,
		Notifier:   producer,
		Uploader:   uploader,
		Logger:     logger,
	})
	notificationUsecase := notificationUC.NewNotificationUsecase(producer, notificationQueue, logger)

	skipPaths := []string{"/health", "/metrics"}
	middlewares := middleware.NewMiddlewares(middleware.Dependencies{
		Cache:       redisCache,
		Logger:      logger,
		JwtProvider: jwtProvider,
		Metrics:     collector,
		RateLimit: middleware.RateLimitConfig{
			WindowSize:  cfg.RateLimit().InboundWindow(),
			MaxRequests: int64(cfg.RateLimit().InboundMaxRequests()),
			KeyPrefix:   cfg.Redis().Prefix() + "ratelimit:",
			SkipPaths:   skipPaths,
		},
	})

	corsConfig := middleware.DefaultCORSConfig()
	if origins := cfg.Server().AllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	}

	// Disable Gin's default logger and recovery
	gin.DisableConsoleColor()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(middlewares.RequestID())
	r.Use(middlewares.Logging(middleware.LoggerConfig{SkipPaths: skipPaths}))
	r.Use(middlewares.CORS(corsConfig))
	r.Use(gin.Recovery())

	apiGroup := r.Group("/api/v1")
	paymentAPI.NewPaymentHandler(paymentUsecase, middlewares).RegisterRoutes(apiGroup)
	notificationAPI.NewNotificationHandler(notificationUsecase, middlewares).RegisterRoutes(apiGroup)

	r.GET("/metrics", gin.WrapH(collector.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"breakers":  breakers.Snapshot(),
			"cache":     store.Stats(),
		})
	})

	return &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server().Host(), cfg.Server().Port()),
		Handler:        r,
		ReadTimeout:    cfg.Server().ReadTimeout(),
		WriteTimeout:   cfg.Server().WriteTimeout(),
		IdleTimeout:    cfg.Server().IdleTimeout(),
		MaxHeaderBytes: cfg.Server().MaxHeaderBytes(),
	}, nil
}

func newConsumer(
	ctx context.Context,
	cfg config.Config,
	notificationQueue queue.Queue,
	users *upstreamClient.UserRPCClient,
	catalog *upstreamClient.CourseRPCClient,
	collector *metrics.Collector,
	logger log.Logger,
) (*notificationUC.Consumer, error) {
	sender, err := bootstrap.NewEmailClient(cfg.Email(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create email client: %w", err)
	}

	renderer, err := notificationUC.NewTemplateRenderer(notificationUC.RendererConfig{
		AppName:      cfg.App().Name(),
		AppURL:       cfg.Server().Domain(),
		SupportEmail: cfg.Email().SupportEmail(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	// Jobs reserved by a crashed run of this consumer go back to the queue.
	if rq, ok := notificationQueue.(*queue.RedisQueue); ok {
		recovered, err := rq.Recover(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover reserved jobs: %w", err)
		}
		if recovered > 0 {
			logger.Warn("Recovered reserved notification jobs", log.Int("count", recovered))
		}
	}

	return notificationUC.NewConsumer(notificationUC.ConsumerDependencies{
		Queue:    notificationQueue,
		Sender:   sender,
		Renderer: renderer,
		Users:    users,
		Catalog:  catalog,
		Metrics:  collector,
		Logger:   logger,
	}, notificationUC.ConsumerConfig{
		RetryDelay:  cfg.Queue().RetryDelay(),
		PollTimeout: cfg.Queue().PollTimeout(),
	}), nil
}
