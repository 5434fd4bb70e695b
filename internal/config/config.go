package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramBot TelegramBot
	LeagueAPI   LeagueAPI
	League      League
	Schedule    Schedule
	Postgres    Postgres
	Redis       Redis
	HTTP        HTTP
}

type TelegramBot struct {
	Token  string `envconfig:"TELEGRAM_TOKEN" required:"true"`
	ChatID int64  `envconfig:"CHAT_ID" required:"true"`
	// OwnerID receives scheduler failure alerts.
	OwnerID int64 `envconfig:"OWNER_ID"`
}

type LeagueAPI struct {
	BaseURL string        `envconfig:"LEAGUE_API_URL" required:"true"`
	Token   string        `envconfig:"LEAGUE_API_TOKEN" required:"true"`
	Timeout time.Duration `envconfig:"LEAGUE_API_TIMEOUT" default:"10s"`
}

type League struct {
	// Season seeds the league clock the first time the bot runs.
	Season    int     `envconfig:"LEAGUE_SEASON" default:"1"`
	SalaryCap float64 `envconfig:"SALARY_CAP" default:"32.0"`
	Offseason bool    `envconfig:"OFFSEASON" default:"false"`
	Timezone  string  `envconfig:"LEAGUE_TIMEZONE" default:"America/Chicago"`
}

type Schedule struct {
	FreezeBeginDay  time.Weekday  `envconfig:"FREEZE_BEGIN_DAY" default:"1"`
	FreezeBeginHour int           `envconfig:"FREEZE_BEGIN_HOUR" default:"0"`
	FreezeEndDay    time.Weekday  `envconfig:"FREEZE_END_DAY" default:"6"`
	FreezeEndHour   int           `envconfig:"FREEZE_END_HOUR" default:"0"`
	IdleTTL         time.Duration `envconfig:"STAGING_IDLE_TTL" default:"24h"`
	SweepInterval   time.Duration `envconfig:"STAGING_SWEEP_INTERVAL" default:"15m"`
}

// Postgres is optional; without a DSN transactions live in memory.
type Postgres struct {
	DSN string `envconfig:"POSTGRES_DSN"`
}

// Redis is optional; with an address trade locks are shared between replicas.
type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type HTTP struct {
	Addr string `envconfig:"HTTP_ADDR" default:":80"`
}

func New() (*Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (l League) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", l.Timezone, err)
	}
	return loc, nil
}
