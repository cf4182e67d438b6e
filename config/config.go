package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port int
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		// Каталог с SQL миграциями для golang-migrate
		MigrationsPath string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		// Без Redis лента изменений и кэш графика работают в памяти процесса
		Enabled bool
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // в часах
	}
	// Первый администратор создается при старте, если его еще нет
	Admin struct {
		Email    string
		Password string
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		// Адрес финансового отдела для уведомлений о платежах
		FinanceTo string
	}
	Log struct {
		Level  string
		Format string
	}
	Collection struct {
		MinOverdueDays int
		MaxOverdueDays int
		TagTTL         time.Duration
		PermanentTags  []string
		SweepInterval  time.Duration
		TimeZone       string
	}
	WhatsApp struct {
		Enabled      bool
		BaseURL      string
		APIKey       string
		TemplateName string
		BroadcastTag string
	}
	Roster struct {
		CacheTTL time.Duration
	}
	RateLimit struct {
		SignInAttempts int
		Window         time.Duration
	}
}

// NewConfig создает новый экземпляр конфигурации.
// Значения читаются из переменных окружения, файл .env подхватывается если он есть.
func NewConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{}

	// Настройки сервера
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("неверный формат порта сервера: %q", v.GetString("SERVER_PORT"))
	}

	// Настройки базы данных
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	if cfg.DB.Port <= 0 {
		return nil, fmt.Errorf("неверный формат порта базы данных: %q", v.GetString("DB_PORT"))
	}
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")
	cfg.DB.MigrationsPath = v.GetString("DB_MIGRATIONS_PATH")

	// Настройки Redis
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")

	cfg.Admin.Email = v.GetString("ADMIN_EMAIL")
	cfg.Admin.Password = v.GetString("ADMIN_PASSWORD")

	// Настройки JWT
	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	cfg.JWT.ExpiresIn = v.GetInt("JWT_EXPIRES_IN")
	if cfg.JWT.ExpiresIn <= 0 {
		return nil, fmt.Errorf("неверный формат времени жизни JWT: %q", v.GetString("JWT_EXPIRES_IN"))
	}

	// Настройки SMTP
	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	cfg.SMTP.Port = v.GetInt("SMTP_PORT")
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")
	cfg.SMTP.FinanceTo = v.GetString("SMTP_FINANCE_TO")

	// Логирование
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Format = v.GetString("LOG_FORMAT")

	// Параметры рабочего списка 3ª cobrança
	cfg.Collection.MinOverdueDays = v.GetInt("COLLECTION_MIN_OVERDUE_DAYS")
	cfg.Collection.MaxOverdueDays = v.GetInt("COLLECTION_MAX_OVERDUE_DAYS")
	if cfg.Collection.MinOverdueDays >= cfg.Collection.MaxOverdueDays {
		return nil, fmt.Errorf("неверное окно просрочки: [%d,%d)",
			cfg.Collection.MinOverdueDays, cfg.Collection.MaxOverdueDays)
	}
	cfg.Collection.TagTTL = v.GetDuration("COLLECTION_TAG_TTL")
	cfg.Collection.PermanentTags = splitList(v.GetString("COLLECTION_PERMANENT_TAGS"))
	cfg.Collection.SweepInterval = v.GetDuration("COLLECTION_SWEEP_INTERVAL")
	cfg.Collection.TimeZone = v.GetString("COLLECTION_TIMEZONE")
	if _, err := time.LoadLocation(cfg.Collection.TimeZone); err != nil {
		return nil, fmt.Errorf("неизвестный часовой пояс %q: %w", cfg.Collection.TimeZone, err)
	}

	// WhatsApp (WATI)
	cfg.WhatsApp.Enabled = v.GetBool("WHATSAPP_ENABLED")
	cfg.WhatsApp.BaseURL = v.GetString("WATI_URL")
	cfg.WhatsApp.APIKey = v.GetString("WATI_API_KEY")
	cfg.WhatsApp.TemplateName = v.GetString("WATI_TEMPLATE_NAME")
	cfg.WhatsApp.BroadcastTag = v.GetString("WATI_BROADCAST_NAME")

	cfg.Roster.CacheTTL = v.GetDuration("ROSTER_CACHE_TTL")

	cfg.RateLimit.SignInAttempts = v.GetInt("RATE_LIMIT_SIGNIN_ATTEMPTS")
	cfg.RateLimit.Window = v.GetDuration("RATE_LIMIT_WINDOW")

	return cfg, nil
}

// setDefaults задает значения по умолчанию
func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cobranca")
	v.SetDefault("DB_MIGRATIONS_PATH", "migrations")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", true)

	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")

	v.SetDefault("JWT_SECRET_KEY", "your-secret-key-here")
	v.SetDefault("JWT_EXPIRES_IN", 24)

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "your-email@gmail.com")
	v.SetDefault("SMTP_PASSWORD", "your-app-password")
	v.SetDefault("SMTP_FROM", "your-email@gmail.com")
	v.SetDefault("SMTP_FINANCE_TO", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("COLLECTION_MIN_OVERDUE_DAYS", 31)
	v.SetDefault("COLLECTION_MAX_OVERDUE_DAYS", 45)
	v.SetDefault("COLLECTION_TAG_TTL", 72*time.Hour)
	v.SetDefault("COLLECTION_PERMANENT_TAGS", "em_negociacao")
	v.SetDefault("COLLECTION_SWEEP_INTERVAL", time.Hour)
	v.SetDefault("COLLECTION_TIMEZONE", "America/Sao_Paulo")

	v.SetDefault("WHATSAPP_ENABLED", false)
	v.SetDefault("WATI_URL", "")
	v.SetDefault("WATI_API_KEY", "")
	v.SetDefault("WATI_TEMPLATE_NAME", "cobranca_3")
	v.SetDefault("WATI_BROADCAST_NAME", "cobranca")

	v.SetDefault("ROSTER_CACHE_TTL", 10*time.Minute)

	v.SetDefault("RATE_LIMIT_SIGNIN_ATTEMPTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
}

// loadDotEnv подгружает .env (путь можно переопределить через ENV_FILE), отсутствие файла не ошибка
func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("ошибка загрузки %s: %w", path, err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Location возвращает часовой пояс для расчета дней просрочки
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Collection.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
