package config

import (
	"fmt"
	"time"
)

const (
	LocalEnv       = "local"
	DevelopmentEnv = "dev"
	ProductionEnv  = "prod"
)

const (
	QueueDriverRedis  = "redis"
	QueueDriverMemory = "memory"
)

type Config interface {
	App() AppConfig
	Server() ServerConfig
	Database() DatabaseConfig
	Redis() RedisConfig
	Cache() CacheConfig
	Logger() LoggerConfig
	Breaker() BreakerConfig
	Retry() RetryConfig
	RateLimit() RateLimitConfig
	Queue() QueueConfig
	Email() EmailConfig
	Upload() UploadConfig
	Upstreams() UpstreamsConfig
}

type AppConfig interface {
	Name() string
	Version() string
	Environment() string
	IsProduction() bool
	ServiceName() string
	TokenIssuer() string
	AccessTokenSecret() string
	ServiceTokenSecret() string
	ServiceTokenExpiresIn() time.Duration
}

type ServerConfig interface {
	Host() string
	Domain() string
	Port() int
	ReadTimeout() time.Duration
	WriteTimeout() time.Duration
	IdleTimeout() time.Duration
	ShutdownTimeout() time.Duration
	MaxHeaderBytes() int
	AllowedOrigins() []string
}

type DatabaseConfig interface {
	Host() string
	Port() string
	User() string
	Password() string
	Name() string
	SSLMode() string
	MaxOpenConns() int
	MaxIdleConns() int
	ConnMaxLifetime() time.Duration
	LogLevel() string
	EnableLog() bool
}

type RedisConfig interface {
	Host() string
	Port() int
	Address() string
	Password() string
	DB() int
	Prefix() string
}

// ResourcePolicy bounds one cached resource type.
type ResourcePolicy struct {
	TTL        time.Duration
	MaxEntries int
}

type CacheConfig interface {
	Policies() map[string]ResourcePolicy
	SweepInterval() time.Duration
}

type LoggerConfig interface {
	Level() string
	Format() string
	OutputPath() string
	MaxFileSizeMB() int
	MaxFileAgeDays() int
	MaxBackupFiles() int
	IsCompressEnabled() bool
}

type BreakerConfig interface {
	FailureThreshold() int
	ResetTimeout() time.Duration
	HalfOpenSuccess() int
}

type RetryConfig interface {
	Attempts() int
	InitialDelay() time.Duration
	MaxDelay() time.Duration
	CallTimeout() time.Duration
}

type RateLimitConfig interface {
	OutboundRatePerSecond() float64
	OutboundBurst() int
	OutboundPolicy() string
	InboundWindow() time.Duration
	InboundMaxRequests() int
}

type QueueConfig interface {
	Driver() string
	PrimaryName() string
	DeadLetterName() string
	ConsumerID() string
	RetryAttempts() int
	RetryDelay() time.Duration
	PollTimeout() time.Duration
}

type EmailConfig interface {
	Provider() string
	DefaultFrom() string
	FromName() string
	SupportEmail() string
	Timeout() time.Duration
	SESRegion() string
	SESAccessKey() string
	SESSecretKey() string
	SESConfigurationSet() string
	SendGridAPIKey() string
}

type UploadConfig interface {
	Provider() string
	LocalDir() string
	S3EndpointURL() string
	S3BucketName() string
	S3PathPrefix() string
	S3Region() string
	S3PresignURLTTL() time.Duration
	S3AccessKey() string
	S3SecretKey() string
}

type UpstreamsConfig interface {
	CourseServiceAddr() string
	UserServiceAddr() string
}

// config holds the actual configuration implementation
type config struct {
	AppCfg       appConfig       `yaml:"app"`
	ServerCfg    serverConfig    `yaml:"server"`
	DatabaseCfg  databaseConfig  `yaml:"database"`
	RedisCfg     redisConfig     `yaml:"redis"`
	CacheCfg     cacheConfig     `yaml:"cache"`
	LoggerCfg    loggerConfig    `yaml:"logger"`
	BreakerCfg   breakerConfig   `yaml:"breaker"`
	RetryCfg     retryConfig     `yaml:"retry"`
	RateLimitCfg rateLimitConfig `yaml:"rate_limit"`
	QueueCfg     queueConfig     `yaml:"queue"`
	EmailCfg     emailConfig     `yaml:"email"`
	UploadCfg    uploadConfig    `yaml:"upload"`
	UpstreamsCfg upstreamsConfig `yaml:"upstreams"`
}

func (c *config) App() AppConfig {
	return &c.AppCfg
}

func (c *config) Server() ServerConfig {
	return &c.ServerCfg
}

func (c *config) Database() DatabaseConfig {
	return &c.DatabaseCfg
}

func (c *config) Redis() RedisConfig {
	return &c.RedisCfg
}

func (c *config) Cache() CacheConfig {
	return &c.CacheCfg
}

func (c *config) Logger() LoggerConfig {
	return &c.LoggerCfg
}

func (c *config) Breaker() BreakerConfig {
	return &c.BreakerCfg
}

func (c *config) Retry() RetryConfig {
	return &c.RetryCfg
}

func (c *config) RateLimit() RateLimitConfig {
	return &c.RateLimitCfg
}

func (c *config) Queue() QueueConfig {
	return &c.QueueCfg
}

func (c *config) Email() EmailConfig {
	return &c.EmailCfg
}

func (c *config) Upload() UploadConfig {
	return &c.UploadCfg
}

func (c *config) Upstreams() UpstreamsConfig {
	return &c.UpstreamsCfg
}

type appConfig struct {
	NameStr        string `yaml:"name" env-default:"payment-service"`
	VersionStr     string `yaml:"version" env-default:"1.0.0"`
	EnvironmentStr string `env:"ENV" env-default:"local"`

	ServiceNameStr string `yaml:"service_name" env-default:"payment-service"`
	TokenIssuerStr string `yaml:"token_issuer"`

	AccessTokenSecretStr     string `env:"ACCESS_TOKEN_SECRET"`
	ServiceTokenSecretStr    string `env:"SERVICE_TOKEN_SECRET"`
	ServiceTokenExpiresInStr string `yaml:"service_token_expires_in" env-default:"5m"`
}

func (c *appConfig) Name() string {
	return c.NameStr
}

func (c *appConfig) Version() string {
	return c.VersionStr
}

func (c *appConfig) Environment() string {
	return c.EnvironmentStr
}

func (c *appConfig) IsProduction() bool {
	return c.EnvironmentStr == ProductionEnv
}

func (c *appConfig) ServiceName() string {
	return c.ServiceNameStr
}

func (c *appConfig) TokenIssuer() string {
	return c.TokenIssuerStr
}

func (c *appConfig) AccessTokenSecret() string {
	return c.AccessTokenSecretStr
}

func (c *appConfig) ServiceTokenSecret() string {
	return c.ServiceTokenSecretStr
}

func (c *appConfig) ServiceTokenExpiresIn() time.Duration {
	duration, _ := time.ParseDuration(c.ServiceTokenExpiresInStr)
	return duration
}

type serverConfig struct {
	HostStr            string   `yaml:"host" env-default:"0.0.0.0"`
	DomainStr          string   `yaml:"domain"`
	PortInt            int      `yaml:"port" env-default:"8080"`
	ReadTimeoutStr     string   `yaml:"read_timeout" env-default:"15s"`
	WriteTimeoutStr    string   `yaml:"write_timeout" env-default:"15s"`
	IdleTimeoutStr     string   `yaml:"idle_timeout" env-default:"120s"`
	ShutdownTimeoutStr string   `yaml:"shutdown_timeout" env-default:"10s"`
	MaxHeaderBytesInt  int      `yaml:"max_header_bytes" env-default:"1048576"` // 1MB
	AllowedOriginsArr  []string `yaml:"allowed_origins"`
}

func (s *serverConfig) Host() string {
	return s.HostStr
}

func (s *serverConfig) Domain() string {
	return s.DomainStr
}

func (s *serverConfig) Port() int {
	return s.PortInt
}

func (s *serverConfig) ReadTimeout() time.Duration {
	duration, _ := time.ParseDuration(s.ReadTimeoutStr)
	return duration
}

func (s *serverConfig) WriteTimeout() time.Duration {
	duration, _ := time.ParseDuration(s.WriteTimeoutStr)
	return duration
}

func (s *serverConfig) IdleTimeout() time.Duration {
	duration, _ := time.ParseDuration(s.IdleTimeoutStr)
	return duration
}

func (s *serverConfig) ShutdownTimeout() time.Duration {
	duration, _ := time.ParseDuration(s.ShutdownTimeoutStr)
	return duration
}

func (s *serverConfig) AllowedOrigins() []string {
	return s.AllowedOriginsArr
}

func (s *serverConfig) MaxHeaderBytes() int {
	return s.MaxHeaderBytesInt
}

type databaseConfig struct {
	HostStr            string `env:"POSTGRES_HOST" env-default:"localhost"`
	PortStr            string `env:"POSTGRES_PORT" env-default:"5432"`
	UserStr            string `env:"POSTGRES_USER" env-default:"postgres"`
	PasswordStr        string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	NameStr            string `env:"POSTGRES_DBNAME" env-default:"payments"`
	SSLModeStr         string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	MaxOpenConnsInt    int    `yaml:"max_open_conns" env-default:"25"`
	MaxIdleConnsInt    int    `yaml:"max_idle_conns" env-default:"10"`
	ConnMaxLifetimeStr string `yaml:"conn_max_lifetime" env-default:"5m"`
	EnableLoggingBool  bool   `yaml:"enable_logging" env-default:"false"`
	LogLevelStr        string `yaml:"log_level" env-default:"warn"`
}

func (d *databaseConfig) Host() string {
	return d.HostStr
}

func (d *databaseConfig) Port() string {
	return d.PortStr
}

func (d *databaseConfig) User() string {
	return d.UserStr
}

func (d *databaseConfig) Password() string {
	return d.PasswordStr
}

func (d *databaseConfig) Name() string {
	return d.NameStr
}

func (d *databaseConfig) SSLMode() string {
	return d.SSLModeStr
}

func (d *databaseConfig) MaxOpenConns() int {
	return d.MaxOpenConnsInt
}

func (d *databaseConfig) MaxIdleConns() int {
	return d.MaxIdleConnsInt
}

func (d *databaseConfig) ConnMaxLifetime() time.Duration {
	duration, _ := time.ParseDuration(d.ConnMaxLifetimeStr)
	return duration
}

func (d *databaseConfig) EnableLog() bool {
	return d.EnableLoggingBool
}

func (d *databaseConfig) LogLevel() string {
	return d.LogLevelStr
}

type redisConfig struct {
	HostStr     string `env:"REDIS_HOST" env-default:"localhost"`
	PortInt     int    `env:"REDIS_PORT" env-default:"6379"`
	PasswordStr string `env:"REDIS_PASSWORD"`
	DBInt       int    `env:"REDIS_DB" env-default:"0"`
	PrefixStr   string `yaml:"prefix" env-default:"payment:"`
}

func (r *redisConfig) Host() string {
	return r.HostStr
}

func (r *redisConfig) Port() int {
	return r.PortInt
}

func (r *redisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host(), r.Port())
}

func (r *redisConfig) Password() string {
	return r.PasswordStr
}

func (r *redisConfig) DB() int {
	return r.DBInt
}

func (r *redisConfig) Prefix() string {
	return r.PrefixStr
}

type resourcePolicyConfig struct {
	TTLStr        string `yaml:"ttl"`
	MaxEntriesInt int    `yaml:"max_entries"`
}

type cacheConfig struct {
	ResourcesMap     map[string]resourcePolicyConfig `yaml:"resources"`
	SweepIntervalStr string                          `yaml:"sweep_interval" env-default:"1m"`
}

var defaultResourcePolicies = map[string]ResourcePolicy{
	"packages":    {TTL: 15 * time.Minute, MaxEntries: 1000},
	"users":       {TTL: 30 * time.Minute, MaxEntries: 1000},
	"courses":     {TTL: 15 * time.Minute, MaxEntries: 1000},
	"enrollments": {TTL: 5 * time.Minute, MaxEntries: 1000},
}

// Policies merges the configured resource types over the built-in ones. A
// configured entry that leaves a field unset keeps the built-in value.
func (c *cacheConfig) Policies() map[string]ResourcePolicy {
	policies := make(map[string]ResourcePolicy, len(defaultResourcePolicies)+len(c.ResourcesMap))
	for name, p := range defaultResourcePolicies {
		policies[name] = p
	}
	for name, raw := range c.ResourcesMap {
		p := policies[name]
		if ttl, err := time.ParseDuration(raw.TTLStr); err == nil {
			p.TTL = ttl
		}
		if raw.MaxEntriesInt != 0 {
			p.MaxEntries = raw.MaxEntriesInt
		}
		policies[name] = p
	}
	return policies
}

func (c *cacheConfig) SweepInterval() time.Duration {
	duration, _ := time.ParseDuration(c.SweepIntervalStr)
	return duration
}

type loggerConfig struct {
	LevelStr          string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	FormatStr         string `yaml:"format" env-default:"json"`
	OutputPathStr     string `yaml:"output_path" env-default:"stdout"`
	MaxFileSizeMBInt  int    `yaml:"max_file_size_mb" env-default:"100"`
	MaxFileAgeDaysInt int    `yaml:"max_file_age_days" env-default:"30"`
	MaxBackupFilesInt int    `yaml:"max_backup_files" env-default:"10"`
	EnableCompressed  bool   `yaml:"enable_compressed" env-default:"true"`
}

func (l *loggerConfig) Level() string {
	return l.LevelStr
}

func (l *loggerConfig) Format() string {
	return l.FormatStr
}

func (l *loggerConfig) OutputPath() string {
	return l.OutputPathStr
}

func (l *loggerConfig) MaxFileSizeMB() int {
	return l.MaxFileSizeMBInt
}

func (l *loggerConfig) MaxFileAgeDays() int {
	return l.MaxFileAgeDaysInt
}

func (l *loggerConfig) MaxBackupFiles() int {
	return l.MaxBackupFilesInt
}

func (l *loggerConfig) IsCompressEnabled() bool {
	return l.EnableCompressed
}

type breakerConfig struct {
	FailureThresholdInt int    `yaml:"failure_threshold" env-default:"5"`
	ResetTimeoutStr     string `yaml:"reset_timeout" env-default:"30s"`
	HalfOpenSuccessInt  int    `yaml:"half_open_success" env-default:"2"`
}

func (b *breakerConfig) FailureThreshold() int {
	return b.FailureThresholdInt
}

func (b *breakerConfig) ResetTimeout() time.Duration {
	duration, _ := time.ParseDuration(b.ResetTimeoutStr)
	return duration
}

func (b *breakerConfig) HalfOpenSuccess() int {
	return b.HalfOpenSuccessInt
}

type retryConfig struct {
	AttemptsInt     int    `yaml:"attempts" env-default:"3"`
	InitialDelayStr string `yaml:"initial_delay" env-default:"200ms"`
	MaxDelayStr     string `yaml:"max_delay" env-default:"2s"`
	CallTimeoutStr  string `yaml:"call_timeout" env-default:"5s"`
}

func (r *retryConfig) Attempts() int {
	return r.AttemptsInt
}

func (r *retryConfig) InitialDelay() time.Duration {
	duration, _ := time.ParseDuration(r.InitialDelayStr)
	return duration
}

func (r *retryConfig) MaxDelay() time.Duration {
	duration, _ := time.ParseDuration(r.MaxDelayStr)
	return duration
}

func (r *retryConfig) CallTimeout() time.Duration {
	duration, _ := time.ParseDuration(r.CallTimeoutStr)
	return duration
}

type rateLimitConfig struct {
	OutboundRPS       float64 `yaml:"outbound_rps" env-default:"50"`
	OutboundBurstInt  int     `yaml:"outbound_burst" env-default:"10"`
	OutboundPolicyStr string  `yaml:"outbound_policy" env-default:"wait"`
	InboundWindowStr  string  `yaml:"inbound_window" env-default:"1m"`
	InboundMaxReqInt  int     `yaml:"inbound_max_requests" env-default:"100"`
}

func (r *rateLimitConfig) OutboundRatePerSecond() float64 {
	return r.OutboundRPS
}

func (r *rateLimitConfig) OutboundBurst() int {
	return r.OutboundBurstInt
}

func (r *rateLimitConfig) OutboundPolicy() string {
	return r.OutboundPolicyStr
}

func (r *rateLimitConfig) InboundWindow() time.Duration {
	duration, _ := time.ParseDuration(r.InboundWindowStr)
	return duration
}

func (r *rateLimitConfig) InboundMaxRequests() int {
	return r.InboundMaxReqInt
}

type queueConfig struct {
	DriverStr         string `yaml:"driver" env:"QUEUE_DRIVER" env-default:"redis"`
	PrimaryNameStr    string `yaml:"primary_name" env-default:"notifications"`
	DeadLetterNameStr string `yaml:"dead_letter_name" env-default:"notifications:dead"`
	ConsumerIDStr     string `yaml:"consumer_id" env:"QUEUE_CONSUMER_ID"`
	RetryAttemptsInt  int    `yaml:"retry_attempts" env-default:"3"`
	RetryDelayStr     string `yaml:"retry_delay" env-default:"5s"`
	PollTimeoutStr    string `yaml:"poll_timeout" env-default:"2s"`
}

func (q *queueConfig) Driver() string {
	return q.DriverStr
}

func (q *queueConfig) PrimaryName() string {
	return q.PrimaryNameStr
}

func (q *queueConfig) DeadLetterName() string {
	return q.DeadLetterNameStr
}

func (q *queueConfig) ConsumerID() string {
	return q.ConsumerIDStr
}

func (q *queueConfig) RetryAttempts() int {
	return q.RetryAttemptsInt
}

func (q *queueConfig) RetryDelay() time.Duration {
	duration, _ := time.ParseDuration(q.RetryDelayStr)
	return duration
}

func (q *queueConfig) PollTimeout() time.Duration {
	duration, _ := time.ParseDuration(q.PollTimeoutStr)
	return duration
}

type emailConfig struct {
	ProviderStr            string `yaml:"provider" env:"EMAIL_PROVIDER" env-default:"mock"`
	DefaultFromStr         string `yaml:"default_from"`
	FromNameStr            string `yaml:"from_name"`
	SupportEmailStr        string `yaml:"support_email"`
	TimeoutStr             string `yaml:"timeout" env-default:"10s"`
	SESRegionStr           string `yaml:"ses_region" env-default:"us-east-1"`
	SESConfigurationSetStr string `yaml:"ses_configuration_set"`
	SESAccessKeyStr        string `env:"EMAIL_SES_ACCESS_KEY" env-default:""`
	SESSecretKeyStr        string `env:"EMAIL_SES_SECRET_KEY" env-default:""`
	SendGridAPIKeyStr      string `env:"EMAIL_SENDGRID_API_KEY" env-default:""`
}

func (e *emailConfig) Provider() string {
	return e.ProviderStr
}

func (e *emailConfig) DefaultFrom() string {
	return e.DefaultFromStr
}

func (e *emailConfig) FromName() string {
	return e.FromNameStr
}

func (e *emailConfig) SupportEmail() string {
	return e.SupportEmailStr
}

func (e *emailConfig) Timeout() time.Duration {
	duration, _ := time.ParseDuration(e.TimeoutStr)
	return duration
}

func (e *emailConfig) SESRegion() string {
	return e.SESRegionStr
}

func (e *emailConfig) SESAccessKey() string {
	return e.SESAccessKeyStr
}

func (e *emailConfig) SESSecretKey() string {
	return e.SESSecretKeyStr
}

func (e *emailConfig) SESConfigurationSet() string {
	return e.SESConfigurationSetStr
}

func (e *emailConfig) SendGridAPIKey() string {
	return e.SendGridAPIKeyStr
}

type uploadConfig struct {
	ProviderStr        string `yaml:"provider" env-default:"local"`
	LocalDirStr        string `yaml:"local_dir" env-default:"./uploads"`
	S3EndpointURLStr   string `yaml:"s3_endpoint_url"`
	S3BucketNameStr    string `yaml:"s3_bucket_name"`
	S3PathPrefixStr    string `yaml:"s3_path_prefix"`
	S3RegionStr        string `yaml:"s3_region"`
	S3PresignURLTTLStr string `yaml:"s3_presign_url_ttl" env-default:"15m"`
	S3AccessKeyStr     string `env:"UPLOAD_S3_ACCESS_KEY" env-default:""`
	S3SecretKeyStr     string `env:"UPLOAD_S3_SECRET_KEY" env-default:""`
}

func (c *uploadConfig) Provider() string {
	return c.ProviderStr
}

func (c *uploadConfig) LocalDir() string {
	return c.LocalDirStr
}

func (c *uploadConfig) S3EndpointURL() string {
	return c.S3EndpointURLStr
}

func (c *uploadConfig) S3BucketName() string {
	return c.S3BucketNameStr
}

func (c *uploadConfig) S3PathPrefix() string {
	return c.S3PathPrefixStr
}

func (c *uploadConfig) S3Region() string {
	return c.S3RegionStr
}

func (c *uploadConfig) S3PresignURLTTL() time.Duration {
	duration, _ := time.ParseDuration(c.S3PresignURLTTLStr)
	return duration
}

func (c *uploadConfig) S3AccessKey() string {
	return c.S3AccessKeyStr
}

func (c *uploadConfig) S3SecretKey() string {
	return c.S3SecretKeyStr
}

type upstreamsConfig struct {
	CourseServiceAddrStr string `yaml:"course_service_addr" env:"COURSE_SERVICE_ADDR" env-default:"localhost:50051"`
	UserServiceAddrStr   string `yaml:"user_service_addr" env:"USER_SERVICE_ADDR" env-default:"localhost:50052"`
}

func (u *upstreamsConfig) CourseServiceAddr() string {
	return u.CourseServiceAddrStr
}

func (u *upstreamsConfig) UserServiceAddr() string {
	return u.UserServiceAddrStr
}
