package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the run configuration. It is built once by Load and never mutated afterwards.
type Config struct {
	App      AppConfig      `mapstructure:",squash"`
	Database DatabaseConfig `mapstructure:",squash"`
	Remote   RemoteConfig   `mapstructure:",squash"`
	Notify   NotifyConfig   `mapstructure:",squash"`
	Timeouts TimeoutConfig  `mapstructure:",squash"`
	Metrics  MetricsConfig  `mapstructure:",squash"`
}

type AppConfig struct {
	WorkDir       string `mapstructure:"work_dir"`
	LogLevel      string `mapstructure:"log_level"`
	RetentionDays int    `mapstructure:"retention_days"`
	Schedule      string `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	Name     string `mapstructure:"db_name"`
	Host     string `mapstructure:"db_host"`
	Port     int    `mapstructure:"db_port"`
	User     string `mapstructure:"db_user"`
	Password string `mapstructure:"db_password"`
	SSLMode  string `mapstructure:"db_sslmode"`
}

type RemoteConfig struct {
	Backend     string `mapstructure:"remote_backend"`
	DailyPath   string `mapstructure:"remote_daily_path"`
	MonthlyPath string `mapstructure:"remote_monthly_path"`
	Retries     uint   `mapstructure:"remote_retries"`

	// Google Drive
	GDriveCredentialsFile  string `mapstructure:"gdrive_credentials_file"`
	GDriveClientSecretFile string `mapstructure:"gdrive_client_secret_file"`
	GDriveRefreshToken     string `mapstructure:"gdrive_refresh_token"`
	GDriveRootFolderID     string `mapstructure:"gdrive_root_folder_id"`
	GDriveAuthAddr         string `mapstructure:"gdrive_auth_addr"`

	// AWS S3 and compatible
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`

	// Google Cloud Storage
	GCSBucket          string `mapstructure:"gcs_bucket"`
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file"`

	// Local filesystem
	LocalRoot string `mapstructure:"local_root"`
}

type NotifyConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	MailFrom      string `mapstructure:"mail_from"`
	MailTransport string `mapstructure:"mail_transport"`
	SendmailPath  string `mapstructure:"sendmail_path"`
	SMTPHost      string `mapstructure:"smtp_host"`
	SMTPPort      int    `mapstructure:"smtp_port"`
	SMTPUser      string `mapstructure:"smtp_user"`
	SMTPPassword  string `mapstructure:"smtp_password"`
	SMTPTLS       string `mapstructure:"smtp_tls"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   int64  `mapstructure:"telegram_chat_id"`
}

type TimeoutConfig struct {
	Dump   time.Duration `mapstructure:"timeout_dump"`
	Upload time.Duration `mapstructure:"timeout_upload"`
	Remote time.Duration `mapstructure:"timeout_remote"`
	Notify time.Duration `mapstructure:"timeout_notify"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"metrics_textfile"`
	Listen   string `mapstructure:"metrics_listen"`
}

var defaults = map[string]any{
	"work_dir":       "/var/lib/pgvault",
	"log_level":      "info",
	"retention_days": 7,
	"schedule":       "0 0 2 * * *",

	"db_name":     "",
	"db_host":     "localhost",
	"db_port":     5432,
	"db_user":     "",
	"db_password": "",
	"db_sslmode":  "disable",

	"remote_backend":      "gdrive",
	"remote_daily_path":   "dbBackups",
	"remote_monthly_path": "dbBackups/monthly",
	"remote_retries":      3,

	"gdrive_credentials_file":   "",
	"gdrive_client_secret_file": "",
	"gdrive_refresh_token":      "",
	"gdrive_root_folder_id":     "root",
	"gdrive_auth_addr":          "127.0.0.1:8085",

	"s3_bucket":     "",
	"s3_region":     "us-east-1",
	"s3_endpoint":   "",
	"s3_access_key": "",
	"s3_secret_key": "",

	"gcs_bucket":           "",
	"gcs_credentials_file": "",

	"local_root": "",

	"admin_email":    "",
	"mail_from":      "",
	"mail_transport": "sendmail",
	"sendmail_path":  "/usr/sbin/sendmail",
	"smtp_host":      "",
	"smtp_port":      587,
	"smtp_user":      "",
	"smtp_password":  "",
	"smtp_tls":       "opportunistic",

	"telegram_bot_token": "",
	"telegram_chat_id":   0,

	"timeout_dump":   "2h",
	"timeout_upload": "1h",
	"timeout_remote": "2m",
	"timeout_notify": "1m",

	"metrics_textfile": "",
	"metrics_listen":   "",
}

// Load resolves the configuration from defaults, an optional config file and the environment.
// Environment variables use the upper-cased key, e.g. DB_NAME or RETENTION_DAYS.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadRemote reads only the remote storage keys, without validating the rest.
func LoadRemote(path string) (*RemoteConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var remote RemoteConfig
	if err := v.Unmarshal(&remote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &remote, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" || ext == "conf" {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("db_name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("db_user is required")
	}
	if c.Database.Port <= 0 {
		return fmt.Errorf("db_port must be positive, got %d", c.Database.Port)
	}
	if c.Notify.AdminEmail == "" {
		return fmt.Errorf("admin_email is required")
	}
	if c.App.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.App.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", c.App.RetentionDays)
	}
	if c.Remote.DailyPath == "" || c.Remote.MonthlyPath == "" {
		return fmt.Errorf("remote_daily_path and remote_monthly_path are required")
	}
	if c.Remote.DailyPath == c.Remote.MonthlyPath {
		return fmt.Errorf("remote_daily_path and remote_monthly_path must differ")
	}

	switch c.Remote.Backend {
	case "gdrive":
		if c.Remote.GDriveCredentialsFile == "" && c.Remote.GDriveClientSecretFile == "" {
			return fmt.Errorf("gdrive backend requires gdrive_credentials_file or gdrive_client_secret_file")
		}
	case "s3":
		if c.Remote.S3Bucket == "" {
			return fmt.Errorf("s3 backend requires s3_bucket")
		}
	case "gcs":
		if c.Remote.GCSBucket == "" {
			return fmt.Errorf("gcs backend requires gcs_bucket")
		}
	case "local":
		if c.Remote.LocalRoot == "" {
			return fmt.Errorf("local backend requires local_root")
		}
	default:
		return fmt.Errorf("unsupported remote_backend %q", c.Remote.Backend)
	}

	switch c.Notify.MailTransport {
	case "sendmail":
	case "smtp":
		if c.Notify.SMTPHost == "" {
			return fmt.Errorf("smtp transport requires smtp_host")
		}
	default:
		return fmt.Errorf("unsupported mail_transport %q", c.Notify.MailTransport)
	}

	return nil
}

// LogFile returns the path of the log file for the given day.
func (c *Config) LogFile(date string) string {
	return filepath.Join(c.App.WorkDir, "logs", "backup_"+date+".log")
}

// RestoreDir is where downloaded artifacts are staged before a restore.
func (c *Config) RestoreDir() string {
	return filepath.Join(c.App.WorkDir, "restore")
}
