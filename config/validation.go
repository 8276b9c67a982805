package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Validate validates the configuration
func Validate(cfg Config) error {
	if err := validateApp(cfg.App()); err != nil {
		return fmt.Errorf("app config validation failed: %w", err)
	}

	if err := validateServer(cfg.Server()); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := validateDatabase(cfg.Database()); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}

	if err := validateRedis(cfg.Redis()); err != nil {
		return fmt.Errorf("redis config validation failed: %w", err)
	}

	if err := validateCache(cfg.Cache()); err != nil {
		return fmt.Errorf("cache config validation failed: %w", err)
	}

	if err := validateLogger(cfg.Logger()); err != nil {
		return fmt.Errorf("logger config validation failed: %w", err)
	}

	if err := validateBreaker(cfg.Breaker()); err != nil {
		return fmt.Errorf("breaker config validation failed: %w", err)
	}

	if err := validateRetry(cfg.Retry()); err != nil {
		return fmt.Errorf("retry config validation failed: %w", err)
	}

	if err := validateRateLimit(cfg.RateLimit()); err != nil {
		return fmt.Errorf("rate_limit config validation failed: %w", err)
	}

	if err := validateQueue(cfg.Queue()); err != nil {
		return fmt.Errorf("queue config validation failed: %w", err)
	}

	if err := validateEmail(cfg.Email()); err != nil {
		return fmt.Errorf("email config validation failed: %w", err)
	}

	if err := validateUpload(cfg.Upload()); err != nil {
		return fmt.Errorf("upload config validation failed: %w", err)
	}

	if err := validateUpstreams(cfg.Upstreams()); err != nil {
		return fmt.Errorf("upstreams config validation failed: %w", err)
	}
	return nil
}

func validateApp(cfg AppConfig) error {
	if cfg.Environment() == "" {
		return fmt.Errorf("environment variable is required, please set ENV env variable")
	}

	switch cfg.Environment() {
	case LocalEnv, DevelopmentEnv, ProductionEnv:
	default:
		return fmt.Errorf("ENV=%s is invalid, only accept `%s`, `%s`, `%s`", cfg.Environment(), LocalEnv, DevelopmentEnv, ProductionEnv)
	}

	if cfg.ServiceName() == "" {
		return fmt.Errorf("service_name is required")
	}

	if cfg.TokenIssuer() == "" {
		return fmt.Errorf("token_issuer is required")
	}

	if cfg.AccessTokenSecret() == "" {
		return fmt.Errorf("access token secret is required, please set ACCESS_TOKEN_SECRET env variable")
	}

	if cfg.ServiceTokenSecret() == "" {
		return fmt.Errorf("service token secret is required, please set SERVICE_TOKEN_SECRET env variable")
	}

	// Service tokens must never verify with the end-user secret
	if cfg.ServiceTokenSecret() == cfg.AccessTokenSecret() {
		return fmt.Errorf("SERVICE_TOKEN_SECRET must differ from ACCESS_TOKEN_SECRET")
	}

	if cfg.ServiceTokenExpiresIn() <= 0 {
		return fmt.Errorf("service_token_expires_in must be positive")
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Host() == "" {
		return fmt.Errorf("host is required")
	}

	// Validate host format
	if cfg.Host() != "0.0.0.0" && cfg.Host() != "localhost" {
		if net.ParseIP(cfg.Host()) == nil {
			return fmt.Errorf("host must be a valid IP address or 'localhost'")
		}
	}

	if cfg.Port() <= 0 || cfg.Port() > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if cfg.ReadTimeout() <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if cfg.WriteTimeout() <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if cfg.ShutdownTimeout() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	// Validate domain format
	if cfg.Domain() != "" && !strings.HasPrefix(cfg.Domain(), "http") {
		return fmt.Errorf("domain must start with http:// or https://")
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Host() == "" {
		return fmt.Errorf("database host is required")
	}

	if cfg.Port() == "" {
		return fmt.Errorf("database port is required")
	}

	if port, err := strconv.Atoi(cfg.Port()); err != nil {
		return fmt.Errorf("database port must be numeric: %w", err)
	} else if port <= 0 || port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}

	if cfg.User() == "" {
		return fmt.Errorf("database user is required")
	}

	if cfg.Password() == "" {
		return fmt.Errorf("database password is required")
	}

	if cfg.Name() == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.MaxOpenConns() <= 0 {
		return fmt.Errorf("max_open_conns must be positive")
	}

	if cfg.MaxIdleConns() <= 0 {
		return fmt.Errorf("max_idle_conns must be positive")
	}

	if cfg.MaxIdleConns() > cfg.MaxOpenConns() {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}

	if cfg.ConnMaxLifetime() <= 0 {
		return fmt.Errorf("conn_max_lifetime must be positive")
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !lo.Contains(validSSLModes, cfg.SSLMode()) {
		return fmt.Errorf("ssl_mode must be one of: %s", strings.Join(validSSLModes, ", "))
	}

	if cfg.EnableLog() {
		validLogLevels := []string{"silent", "error", "warn", "info"}
		if !lo.Contains(validLogLevels, cfg.LogLevel()) {
			return fmt.Errorf("database log_level must be one of: %s", strings.Join(validLogLevels, ", "))
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host() == "" {
		return fmt.Errorf("redis host is required")
	}

	if cfg.Port() <= 0 || cfg.Port() > 65535 {
		return fmt.Errorf("redis port must be between 1 and 65535")
	}

	if cfg.DB() < 0 || cfg.DB() > 15 {
		return fmt.Errorf("redis db must be between 0 and 15")
	}

	return nil
}

func validateCache(cfg CacheConfig) error {
	for name, policy := range cfg.Policies() {
		if policy.TTL <= 0 {
			return fmt.Errorf("cache resource %q: ttl must be positive", name)
		}
		if policy.MaxEntries <= 0 {
			return fmt.Errorf("cache resource %q: max_entries must be positive", name)
		}
	}

	if cfg.SweepInterval() <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}

	return nil
}

func validateLogger(cfg LoggerConfig) error {
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !lo.Contains(validLevels, cfg.Level()) {
		return fmt.Errorf("level must be one of: %s", strings.Join(validLevels, ", "))
	}

	if cfg.Format() != "json" && cfg.Format() != "console" {
		return fmt.Errorf("format must be 'json' or 'console'")
	}

	if cfg.OutputPath() == "" {
		return fmt.Errorf("output_path is required")
	}

	if cfg.MaxFileSizeMB() <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive")
	}

	if cfg.MaxFileAgeDays() <= 0 {
		return fmt.Errorf("max_file_age_days must be positive")
	}

	if cfg.MaxBackupFiles() < 0 {
		return fmt.Errorf("max_backup_files must not be negative")
	}

	return nil
}

func validateBreaker(cfg BreakerConfig) error {
	if cfg.FailureThreshold() <= 0 {
		return fmt.Errorf("failure_threshold must be positive")
	}

	if cfg.ResetTimeout() <= 0 {
		return fmt.Errorf("reset_timeout must be positive")
	}

	if cfg.HalfOpenSuccess() <= 0 {
		return fmt.Errorf("half_open_success must be positive")
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.Attempts() <= 0 {
		return fmt.Errorf("attempts must be positive")
	}

	if cfg.InitialDelay() <= 0 {
		return fmt.Errorf("initial_delay must be positive")
	}

	if cfg.MaxDelay() < cfg.InitialDelay() {
		return fmt.Errorf("max_delay must not be less than initial_delay")
	}

	if cfg.CallTimeout() <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	if cfg.OutboundRatePerSecond() < 0 {
		return fmt.Errorf("outbound_rps must not be negative")
	}

	if cfg.OutboundRatePerSecond() > 0 && cfg.OutboundBurst() <= 0 {
		return fmt.Errorf("outbound_burst must be positive when outbound_rps is set")
	}

	if cfg.OutboundPolicy() != "wait" && cfg.OutboundPolicy() != "reject" {
		return fmt.Errorf("outbound_policy must be 'wait' or 'reject'")
	}

	if cfg.InboundWindow() <= 0 {
		return fmt.Errorf("inbound_window must be positive")
	}

	if cfg.InboundMaxRequests() <= 0 {
		return fmt.Errorf("inbound_max_requests must be positive")
	}

	return nil
}

func validateQueue(cfg QueueConfig) error {
	if cfg.Driver() != QueueDriverRedis && cfg.Driver() != QueueDriverMemory {
		return fmt.Errorf("driver must be '%s' or '%s'", QueueDriverRedis, QueueDriverMemory)
	}

	if cfg.PrimaryName() == "" {
		return fmt.Errorf("primary_name is required")
	}

	if cfg.DeadLetterName() == "" {
		return fmt.Errorf("dead_letter_name is required")
	}

	if cfg.PrimaryName() == cfg.DeadLetterName() {
		return fmt.Errorf("dead_letter_name must differ from primary_name")
	}

	if cfg.RetryAttempts() <= 0 {
		return fmt.Errorf("retry_attempts must be positive")
	}

	if cfg.RetryDelay() <= 0 {
		return fmt.Errorf("retry_delay must be positive")
	}

	if cfg.PollTimeout() <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}

	return nil
}

func validateEmail(cfg EmailConfig) error {
	switch cfg.Provider() {
	case "mock":
	case "sendgrid":
		if cfg.SendGridAPIKey() == "" {
			return fmt.Errorf("sendgrid api key is required, please set EMAIL_SENDGRID_API_KEY env variable")
		}
	case "ses":
		if cfg.SESRegion() == "" {
			return fmt.Errorf("ses_region is required when provider is 'ses'")
		}
	default:
		return fmt.Errorf("email provider must be one of: mock, sendgrid, ses")
	}

	if cfg.Provider() != "mock" && cfg.DefaultFrom() == "" {
		return fmt.Errorf("default_from is required")
	}

	if cfg.Timeout() <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

func validateUpload(cfg UploadConfig) error {
	provider := cfg.Provider()
	if provider != "s3" && provider != "local" {
		return fmt.Errorf("upload provider must be 's3' or 'local'")
	}

	if provider == "local" {
		if cfg.LocalDir() == "" {
			return fmt.Errorf("local_dir is required when provider is 'local'")
		}

		if err := os.MkdirAll(cfg.LocalDir(), 0755); err != nil {
			return fmt.Errorf("cannot create local upload directory: %w", err)
		}
	}

	if provider == "s3" {
		if cfg.S3BucketName() == "" {
			return fmt.Errorf("s3_bucket_name is required when provider is 's3'")
		}
		if cfg.S3Region() == "" {
			return fmt.Errorf("s3_region is required when provider is 's3'")
		}
		if cfg.S3AccessKey() == "" {
			return fmt.Errorf("s3 access key id is required when provider is 's3'")
		}
		if cfg.S3SecretKey() == "" {
			return fmt.Errorf("s3 secret access key is required when provider is 's3'")
		}
		if cfg.S3PresignURLTTL() <= 0 {
			return fmt.Errorf("s3 presign_url_ttl must be positive")
		}
		if cfg.S3EndpointURL() != "" && !strings.HasPrefix(cfg.S3EndpointURL(), "http") {
			return fmt.Errorf("s3 endpoint_url must start with http:// or https://")
		}
	}

	return nil
}

func validateUpstreams(cfg UpstreamsConfig) error {
	for name, addr := range map[string]string{
		"course_service_addr": cfg.CourseServiceAddr(),
		"user_service_addr":   cfg.UserServiceAddr(),
	} {
		if addr == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s must be host:port: %w", name, err)
		}
	}
	return nil
}
