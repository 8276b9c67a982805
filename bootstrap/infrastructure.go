package bootstrap

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-payment-service/common"
	"go-payment-service/config"
	"go-payment-service/pkg/breaker"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/email"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/metrics"
	"go-payment-service/pkg/queue"
	"go-payment-service/pkg/resilient"
	"go-payment-service/pkg/upload"
)

// NewLogger builds the zap logger described by the logger section.
func NewLogger(cfg config.Config) (log.Logger, error) {
	app := cfg.App()
	return log.NewZapLogger(log.NewConfig(cfg.Logger(), app.Name(), app.Version(), app.IsProduction()))
}

func RedisCacheConfig(cfg config.RedisConfig) *cache.Config {
	return &cache.Config{
		Host:       cfg.Host(),
		Port:       cfg.Port(),
		Password:   cfg.Password(),
		DB:         cfg.DB(),
		DefaultTTL: 5 * time.Minute,
	}
}

// NewResourceCache builds the in-process store that fronts upstream lookups.
func NewResourceCache(cfg config.CacheConfig, logger log.Logger, recorder cache.Recorder) *cache.MemoryCache {
	policies := make(map[string]cache.Policy)
	for name, p := range cfg.Policies() {
		policies[name] = cache.Policy{TTL: p.TTL, MaxEntries: p.MaxEntries}
	}
	return cache.NewMemoryCache(policies, common.NewLoggerAdapter(logger),
		cache.WithRecorder(recorder),
		cache.WithSweepInterval(cfg.SweepInterval()),
	)
}

// NewBreakers shares one breaker per upstream; transitions are logged and
// exported.
func NewBreakers(cfg config.BreakerConfig, logger log.Logger, collector *metrics.Collector) *breaker.Registry {
	return breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.FailureThreshold(),
		ResetTimeout:     cfg.ResetTimeout(),
		HalfOpenSuccess:  cfg.HalfOpenSuccess(),
		OnStateChange: func(name string, from, to breaker.State) {
			collector.BreakerStateChange(name, from, to)
			logger.Warn("Circuit breaker state changed",
				log.Upstream(name),
				log.String("from", from.String()),
				log.String("to", to.String()),
			)
		},
	})
}

// NewResilientClient wires the shared cache store and the breaker of upstream.
func NewResilientClient(
	upstream string,
	cfg config.Config,
	store cache.Store,
	breakers *breaker.Registry,
	logger log.Logger,
	collector *metrics.Collector,
) *resilient.Client {
	return resilient.New(upstream, resilient.Config{
		RatePerSecond: cfg.RateLimit().OutboundRatePerSecond(),
		Burst:         cfg.RateLimit().OutboundBurst(),
		Policy:        resilient.RatePolicy(cfg.RateLimit().OutboundPolicy()),
		Attempts:      cfg.Retry().Attempts(),
		InitialDelay:  cfg.Retry().InitialDelay(),
		MaxDelay:      cfg.Retry().MaxDelay(),
		CallTimeout:   cfg.Retry().CallTimeout(),
	}, store, breakers.Get(upstream), logger, resilient.WithRecorder(collector))
}

func NewQueue(cfg config.QueueConfig, rdb *redis.Client, logger log.Logger) (queue.Queue, error) {
	switch cfg.Driver() {
	case config.QueueDriverMemory:
		logger.Warn("Using in-memory notification queue, jobs are lost on restart")
		return queue.NewMemoryQueue(), nil
	case config.QueueDriverRedis:
		return queue.NewRedisQueue(rdb, queue.Names{
			Primary:    cfg.PrimaryName(),
			DeadLetter: cfg.DeadLetterName(),
		}, common.NewLoggerAdapter(logger), queue.WithConsumerID(cfg.ConsumerID()))
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver())
	}
}

func NewEmailClient(cfg config.EmailConfig, logger log.Logger) (email.Client, error) {
	return email.NewClient(&email.Config{
		Provider:            cfg.Provider(),
		DefaultFrom:         cfg.DefaultFrom(),
		FromName:            cfg.FromName(),
		Timeout:             cfg.Timeout(),
		SESRegion:           cfg.SESRegion(),
		SESAccessKey:        cfg.SESAccessKey(),
		SESSecretKey:        cfg.SESSecretKey(),
		SESConfigurationSet: cfg.SESConfigurationSet(),
		SendGridAPIKey:      cfg.SendGridAPIKey(),
	}, common.NewLoggerAdapter(logger))
}

func NewUploader(cfg config.UploadConfig) (upload.Client, error) {
	return upload.New(&upload.Config{
		Provider:      cfg.Provider(),
		LocalDir:      cfg.LocalDir(),
		S3AccessKey:   cfg.S3AccessKey(),
		S3SecretKey:   cfg.S3SecretKey(),
		S3EndpointURL: cfg.S3EndpointURL(),
		S3BucketName:  cfg.S3BucketName(),
		S3PathPrefix:  cfg.S3PathPrefix(),
		S3Region:      cfg.S3Region(),
	})
}
