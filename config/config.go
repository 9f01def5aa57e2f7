package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	OperatorJWTSecret string `mapstructure:"OPERATOR_JWT_SECRET"`

	// Negotiation policy.
	SchedulerTimezone    string `mapstructure:"SCHEDULER_TIMEZONE"`
	InitialLookaheadDays int    `mapstructure:"INITIAL_LOOKAHEAD_DAYS"`
	RetryLookaheadDays   int    `mapstructure:"RETRY_LOOKAHEAD_DAYS"`
	MaxOfferedSlots      int    `mapstructure:"MAX_OFFERED_SLOTS"`
	RequireConfirmation  bool   `mapstructure:"REQUIRE_CONFIRMATION"`

	// Reply polling.
	PollIntervalSeconds int `mapstructure:"POLL_INTERVAL_SECONDS"`
	PollBatchSize       int `mapstructure:"POLL_BATCH_SIZE"`

	// Slot generation.
	WorkingHoursStart string `mapstructure:"WORKING_HOURS_START"`
	WorkingHoursEnd   string `mapstructure:"WORKING_HOURS_END"`
	WorkingDays       string `mapstructure:"WORKING_DAYS"`
	SlotStepMinutes   int    `mapstructure:"SLOT_STEP_MINUTES"`
	MaxSlotsPerFetch  int    `mapstructure:"MAX_SLOTS_PER_FETCH"`

	// Extraction backends.
	ExtractorBackend string `mapstructure:"EXTRACTOR_BACKEND"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `mapstructure:"ANTHROPIC_MODEL"`
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel      string `mapstructure:"GEMINI_MODEL"`
	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel      string `mapstructure:"OPENAI_MODEL"`

	// Calendar.
	CalendarBackend       string `mapstructure:"CALENDAR_BACKEND"`
	GoogleCredentialsFile string `mapstructure:"GOOGLE_CREDENTIALS_FILE"`

	// Mail transport.
	TransportBackend string `mapstructure:"TRANSPORT_BACKEND"`
	SMTPHost         string `mapstructure:"SMTP_HOST"`
	SMTPPort         int    `mapstructure:"SMTP_PORT"`
	SMTPUser         string `mapstructure:"SMTP_USER"`
	SMTPPassword     string `mapstructure:"SMTP_PASSWORD"`
	IMAPHost         string `mapstructure:"IMAP_HOST"`
	IMAPPort         int    `mapstructure:"IMAP_PORT"`
	IMAPUser         string `mapstructure:"IMAP_USER"`
	IMAPPassword     string `mapstructure:"IMAP_PASSWORD"`
	MailFromAddress  string `mapstructure:"MAIL_FROM_ADDRESS"`
	MailFromName     string `mapstructure:"MAIL_FROM_NAME"`

	// Redis configuration.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDedupDB    int    `mapstructure:"REDIS_DEDUP_DB"`
	RedisReminderDB int    `mapstructure:"REDIS_REMINDER_DB"`
	RedisCacheDB    int    `mapstructure:"REDIS_CACHE_DB"`

	// Extraction results are cached in Redis when the TTL is positive.
	ExtractionCacheTTLMinutes int `mapstructure:"EXTRACTION_CACHE_TTL_MINUTES"`

	RemindersEnabled    bool `mapstructure:"REMINDERS_ENABLED"`
	ReminderLeadMinutes int  `mapstructure:"REMINDER_LEAD_MINUTES"`

	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	ArchiveEnabled bool   `mapstructure:"ARCHIVE_ENABLED"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("OPERATOR_JWT_SECRET", "")

	viper.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	viper.SetDefault("INITIAL_LOOKAHEAD_DAYS", 14)
	viper.SetDefault("RETRY_LOOKAHEAD_DAYS", 21)
	viper.SetDefault("MAX_OFFERED_SLOTS", 6)
	viper.SetDefault("REQUIRE_CONFIRMATION", false)

	viper.SetDefault("POLL_INTERVAL_SECONDS", 30)
	viper.SetDefault("POLL_BATCH_SIZE", 25)

	viper.SetDefault("WORKING_HOURS_START", "09:00")
	viper.SetDefault("WORKING_HOURS_END", "18:00")
	viper.SetDefault("WORKING_DAYS", "Mon,Tue,Wed,Thu,Fri")
	viper.SetDefault("SLOT_STEP_MINUTES", 30)
	viper.SetDefault("MAX_SLOTS_PER_FETCH", 10)

	viper.SetDefault("EXTRACTOR_BACKEND", "local")
	viper.SetDefault("ANTHROPIC_API_KEY", "")
	viper.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")

	viper.SetDefault("CALENDAR_BACKEND", "memory")
	viper.SetDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")

	viper.SetDefault("TRANSPORT_BACKEND", "memory")
	viper.SetDefault("SMTP_HOST", "smtp.gmail.com")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USER", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("IMAP_HOST", "imap.gmail.com")
	viper.SetDefault("IMAP_PORT", 993)
	viper.SetDefault("IMAP_USER", "")
	viper.SetDefault("IMAP_PASSWORD", "")
	viper.SetDefault("MAIL_FROM_ADDRESS", "")
	viper.SetDefault("MAIL_FROM_NAME", "Interview Scheduler")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DEDUP_DB", 0)
	viper.SetDefault("REDIS_REMINDER_DB", 1)
	viper.SetDefault("REDIS_CACHE_DB", 2)
	viper.SetDefault("EXTRACTION_CACHE_TTL_MINUTES", 0)
	viper.SetDefault("REMINDERS_ENABLED", false)
	viper.SetDefault("REMINDER_LEAD_MINUTES", 60)

	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("ARCHIVE_ENABLED", false)
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// Location resolves SCHEDULER_TIMEZONE, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.SchedulerTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		log.Printf("Unknown SCHEDULER_TIMEZONE %q, using UTC", c.SchedulerTimezone)
		return time.UTC
	}
	return loc
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) ExtractionCacheTTL() time.Duration {
	return time.Duration(c.ExtractionCacheTTLMinutes) * time.Minute
}

func (c Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMinutes) * time.Minute
}

// Weekdays parses WORKING_DAYS ("Mon,Tue,...") into a set.
func (c Config) Weekdays() map[time.Weekday]bool {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	days := make(map[time.Weekday]bool)
	for _, raw := range strings.Split(c.WorkingDays, ",") {
		key := strings.ToLower(strings.TrimSpace(raw))
		if len(key) > 3 {
			key = key[:3]
		}
		if d, ok := names[key]; ok {
			days[d] = true
		}
	}
	return days
}
