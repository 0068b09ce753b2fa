package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	authConfig "github.com/iurnickita/kiosk/internal/auth/config"
	directoryConfig "github.com/iurnickita/kiosk/internal/directory/config"
	eventsConfig "github.com/iurnickita/kiosk/internal/events/config"
	handlerConfig "github.com/iurnickita/kiosk/internal/handler/config"
	loggerConfig "github.com/iurnickita/kiosk/internal/logger/config"
	notifyConfig "github.com/iurnickita/kiosk/internal/notify/config"
	serviceConfig "github.com/iurnickita/kiosk/internal/service/config"
	storeConfig "github.com/iurnickita/kiosk/internal/store/config"
)

type Config struct {
	Handler   handlerConfig.Config
	Service   serviceConfig.Config
	Store     storeConfig.Config
	Logger    loggerConfig.Config
	Notify    notifyConfig.Config
	Events    eventsConfig.Config
	Auth      authConfig.Config
	Directory directoryConfig.Config
}

// GetConfig собирает конфигурацию из флагов, переменных окружения и файла .env.
// Приоритет: флаг, окружение, .env, значение по умолчанию.
func GetConfig() (Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return load(os.Args[1:])
}

func load(args []string) (Config, error) {
	flags := pflag.NewFlagSet("kiosk", pflag.ContinueOnError)
	flags.StringP("run_address", "a", ":8080", "address and port to run server")
	flags.StringP("database_uri", "d", "", "postgres connection string, empty for file journal")
	flags.String("journal_path", "data/journal.jsonl", "booking journal file")
	flags.Duration("write_timeout", 5*time.Second, "timeout of one journal write")
	flags.String("directory_path", "data/directory.yml", "users and catalog file")
	flags.StringP("log_level", "l", "info", "log level")
	flags.String("notify_address", "", "messaging service address, empty to log messages only")
	flags.Duration("notify_timeout", 10*time.Second, "messaging service request timeout")
	flags.String("kafka_brokers", "", "comma separated kafka brokers, empty to disable events")
	flags.String("kafka_topic", "kiosk.bookings", "kafka topic for booking events")
	flags.String("cash_user", "", "account mirroring cash deposits and withdrawals")
	flags.String("auth_secret", "", "secret for signing auth tokens")
	flags.Duration("auth_token_ttl", 30*24*time.Hour, "auth token lifetime")
	flags.Duration("background_timeout", 30*time.Second, "timeout of background tasks")
	flags.Int("tally_concurrency", 4, "tally entries booked at once, 0 for no limit")
	flags.String("archive_schedule", "0 0 8 28 * *", "cron schedule of the monthly archive, with seconds")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, err
	}
	// RUN_ADDRESS, DATABASE_URI, ...
	v.AutomaticEnv()

	var cfg Config
	cfg.Handler.ServerAddr = v.GetString("run_address")

	cfg.Store.DBDsn = v.GetString("database_uri")
	cfg.Store.JournalPath = v.GetString("journal_path")
	cfg.Store.WriteTimeout = v.GetDuration("write_timeout")

	cfg.Directory.Path = v.GetString("directory_path")
	cfg.Logger.LogLevel = v.GetString("log_level")

	cfg.Notify.Address = v.GetString("notify_address")
	cfg.Notify.Timeout = v.GetDuration("notify_timeout")

	cfg.Events.Brokers = splitList(v.GetString("kafka_brokers"))
	cfg.Events.Topic = v.GetString("kafka_topic")

	cfg.Auth.Secret = v.GetString("auth_secret")
	cfg.Auth.TokenTTL = v.GetDuration("auth_token_ttl")

	cfg.Service.CashUser = v.GetString("cash_user")
	cfg.Service.BackgroundTimeout = v.GetDuration("background_timeout")
	cfg.Service.TallyConcurrency = v.GetInt("tally_concurrency")
	cfg.Service.ArchiveSchedule = v.GetString("archive_schedule")

	if cfg.Auth.Secret == "" {
		return Config{}, errors.New("AUTH_SECRET is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var list []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}
