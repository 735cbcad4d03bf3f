package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "NEWSPOSTER_CONFIG"
	dataDirEnv       = "NEWSPOSTER_DATA_DIR"
	logLevelEnv      = "LOG_LEVEL"
	openAIKeyEnv     = "OPENAI_API_KEY"
	geminiKeyEnv     = "GEMINI_API_KEY"
	anthropicKeyEnv  = "ANTHROPIC_API_KEY"
	usernameEnv      = "POSTER_USERNAME"
	passwordEnv      = "POSTER_PASSWORD"
	redisAddrEnv     = "REDIS_ADDR"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
)

// Provider names understood by the llm factory.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Fingerprint store backends.
const (
	FingerprintsJSON   = "json"
	FingerprintsSQLite = "sqlite"
	FingerprintsRedis  = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	Crawl         CrawlConfig         `yaml:"crawl"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Generation    GenerationConfig    `yaml:"generation"`
	Posting       PostingConfig       `yaml:"posting"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Sites         []SiteConfig        `yaml:"sites"`
}

// NotificationsConfig lists operator alert sinks for finished stages.
type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig is enabled when both fields are set.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig controls the slog handler and the optional rotated file sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// StorageConfig selects where records and fingerprints live.
type StorageConfig struct {
	DataDir      string `yaml:"dataDir"`
	Fingerprints string `yaml:"fingerprints"`
	SQLitePath   string `yaml:"sqlitePath"`
	RedisAddr    string `yaml:"redisAddr"`
	RedisKey     string `yaml:"redisKey"`
}

// SQLiteFile resolves the database path, defaulting into the data directory.
func (s StorageConfig) SQLiteFile() string {
	if s.SQLitePath != "" {
		return s.SQLitePath
	}
	return filepath.Join(s.DataDir, "fingerprints.db")
}

// CrawlConfig tunes discovery and the worker pool.
type CrawlConfig struct {
	Concurrency int `yaml:"concurrency"`
	// PerCategoryCap limits articles per category; zero means no cap.
	PerCategoryCap int           `yaml:"perCategoryCap"`
	UserAgent      string        `yaml:"userAgent"`
	FetchAttempts  int           `yaml:"fetchAttempts"`
	FetchBaseDelay time.Duration `yaml:"fetchBaseDelay"`
	FetchMaxDelay  time.Duration `yaml:"fetchMaxDelay"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	TaskTimeout    time.Duration `yaml:"taskTimeout"`
}

// ModelConfig describes one language-model backend.
type ModelConfig struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	APIKey       string  `yaml:"apiKey"`
	BaseURL      string  `yaml:"baseUrl"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Temperature  float32 `yaml:"temperature"`
}

// Enabled reports whether the backend was configured at all.
func (m ModelConfig) Enabled() bool {
	return m.Provider != ""
}

// AnalysisConfig chooses the analyzers tried in order before the lexical fallback.
type AnalysisConfig struct {
	Model   ModelConfig   `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// ServiceURL points at an optional HTTP analysis service tried before the model.
	ServiceURL    string `yaml:"serviceUrl"`
	ServiceAPIKey string `yaml:"serviceApiKey"`
}

// GenerationConfig configures both generation stages.
type GenerationConfig struct {
	Body          ModelConfig   `yaml:"body"`
	Tags          ModelConfig   `yaml:"tags"`
	PlatformLimit int           `yaml:"platformLimit"`
	MinTags       int           `yaml:"minTags"`
	MaxTags       int           `yaml:"maxTags"`
	BodyAttempts  int           `yaml:"bodyAttempts"`
	BodyBackoff   time.Duration `yaml:"bodyBackoff"`
	CallTimeout   time.Duration `yaml:"callTimeout"`
}

// PostingConfig configures the browser session and the posting agent.
type PostingConfig struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Strategies     []string      `yaml:"strategies"`
	PacingInterval time.Duration `yaml:"pacingInterval"`
	MaxPosts       int           `yaml:"maxPosts"`
	AuthAttempts   int           `yaml:"authAttempts"`
	AuthBackoff    time.Duration `yaml:"authBackoff"`
	SubmitTimeout  time.Duration `yaml:"submitTimeout"`
	Headless       bool          `yaml:"headless"`
	UserAgent      string        `yaml:"userAgent"`
	LoginURL       string        `yaml:"loginUrl"`
	HomeURL        string        `yaml:"homeUrl"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string           `yaml:"name"`
	Scanner    string           `yaml:"scanner"`
	Hosts      []string         `yaml:"hosts"`
	Include    []string         `yaml:"include"`
	Exclude    []string         `yaml:"exclude"`
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig holds the listing pages of one category. Include and Exclude
// replace the site-level patterns when set.
type CategoryConfig struct {
	Name    string   `yaml:"name"`
	URLs    []string `yaml:"urls"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Load reads .env and the YAML configuration (if present) and applies
// environment overrides. path wins over NEWSPOSTER_CONFIG.
func Load(path string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}
	if len(cfg.Posting.Strategies) == 0 {
		cfg.Posting.Strategies = defaultConfig().Posting.Strategies
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv(usernameEnv); v != "" {
		c.Posting.Username = v
	}
	if v := os.Getenv(passwordEnv); v != "" {
		c.Posting.Password = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	for _, model := range []*ModelConfig{&c.Analysis.Model, &c.Generation.Body, &c.Generation.Tags} {
		if model.APIKey != "" {
			continue
		}
		switch model.Provider {
		case ProviderOpenAI:
			model.APIKey = os.Getenv(openAIKeyEnv)
		case ProviderGemini:
			model.APIKey = os.Getenv(geminiKeyEnv)
		case ProviderAnthropic:
			model.APIKey = os.Getenv(anthropicKeyEnv)
		}
	}
}

// Validate reports every unusable value at once.
func (c Config) Validate() error {
	var errs []error

	if c.Crawl.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("crawl.concurrency must be at least 1, got %d", c.Crawl.Concurrency))
	}
	if c.Crawl.PerCategoryCap < 0 {
		errs = append(errs, fmt.Errorf("crawl.perCategoryCap must not be negative, got %d", c.Crawl.PerCategoryCap))
	}
	if c.Crawl.FetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("crawl.fetchAttempts must be at least 1, got %d", c.Crawl.FetchAttempts))
	}
	if c.Generation.PlatformLimit < 1 {
		errs = append(errs, fmt.Errorf("generation.platformLimit must be positive, got %d", c.Generation.PlatformLimit))
	}
	if c.Generation.MinTags < 0 || c.Generation.MinTags > c.Generation.MaxTags {
		errs = append(errs, fmt.Errorf("generation tag range %d..%d is invalid", c.Generation.MinTags, c.Generation.MaxTags))
	}
	if c.Generation.BodyAttempts < 1 {
		errs = append(errs, fmt.Errorf("generation.bodyAttempts must be at least 1, got %d", c.Generation.BodyAttempts))
	}
	if c.Posting.PacingInterval < 0 {
		errs = append(errs, fmt.Errorf("posting.pacingInterval must not be negative"))
	}
	if c.Posting.MaxPosts < 0 {
		errs = append(errs, fmt.Errorf("posting.maxPosts must not be negative"))
	}
	if c.Posting.AuthAttempts < 1 {
		errs = append(errs, fmt.Errorf("posting.authAttempts must be at least 1, got %d", c.Posting.AuthAttempts))
	}

	switch c.Storage.Fingerprints {
	case FingerprintsJSON, FingerprintsSQLite:
	case FingerprintsRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("storage.redisAddr is required for redis fingerprints"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown fingerprint store %q", c.Storage.Fingerprints))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.dataDir is required"))
	}

	for _, model := range []ModelConfig{c.Analysis.Model, c.Generation.Body, c.Generation.Tags} {
		switch model.Provider {
		case "", ProviderOpenAI, ProviderOllama, ProviderGemini, ProviderAnthropic:
		default:
			errs = append(errs, fmt.Errorf("unknown model provider %q", model.Provider))
		}
	}
	if !c.Generation.Body.Enabled() {
		errs = append(errs, errors.New("generation.body.provider is required"))
	}

	for _, site := range c.Sites {
		if len(site.Categories) == 0 {
			errs = append(errs, fmt.Errorf("site %s has no categories", site.Name))
		}
		for _, category := range site.Categories {
			if strings.TrimSpace(category.Name) == "" || len(category.URLs) == 0 {
				errs = append(errs, fmt.Errorf("site %s: category needs a name and at least one url", site.Name))
			}
		}
	}

	return errors.Join(errs...)
}

var guardianInclude = []string{
	"/2024/", "/2025/", "/2026/", "/world/", "/uk-news/", "/politics/",
	"/business/", "/environment/", "/science/", "/culture/",
	"/sport/", "/technology/", "/society/", "/education/",
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Storage: StorageConfig{
			DataDir:      "data",
			Fingerprints: FingerprintsJSON,
			RedisKey:     "newsposter:fingerprints",
		},
		Crawl: CrawlConfig{
			Concurrency:    4,
			PerCategoryCap: 5,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			FetchAttempts:  3,
			FetchBaseDelay: 500 * time.Millisecond,
			FetchMaxDelay:  10 * time.Second,
			FetchTimeout:   15 * time.Second,
			TaskTimeout:    2 * time.Minute,
		},
		Analysis: AnalysisConfig{
			Timeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			Body: ModelConfig{
				Provider:     ProviderOllama,
				Model:        "llama3.2:3b",
				BaseURL:      "http://localhost:11434/v1",
				SystemPrompt: "You write short, factual social media news posts.",
				Temperature:  0.7,
			},
			PlatformLimit: 280,
			MinTags:       3,
			MaxTags:       5,
			BodyAttempts:  3,
			BodyBackoff:   time.Second,
			CallTimeout:   30 * time.Second,
		},
		Posting: PostingConfig{
			Strategies:     []string{"inline", "alternate", "keyboard"},
			PacingInterval: 10 * time.Second,
			AuthAttempts:   3,
			AuthBackoff:    2 * time.Second,
			SubmitTimeout:  90 * time.Second,
			Headless:       true,
		},
		Sites: []SiteConfig{
			{
				Name:    "guardian",
				Scanner: "html",
				Hosts:   []string{"theguardian.com"},
				Include: guardianInclude,
				Categories: []CategoryConfig{
					{Name: "world", URLs: []string{
						"https://www.theguardian.com/world",
						"https://www.theguardian.com/world/europe-news",
						"https://www.theguardian.com/world/americas",
						"https://www.theguardian.com/world/asia-pacific",
					}},
					{Name: "uk", URLs: []string{
						"https://www.theguardian.com/uk-news",
						"https://www.theguardian.com/politics",
						"https://www.theguardian.com/society",
					}},
					{Name: "business", URLs: []string{
						"https://www.theguardian.com/business",
						"https://www.theguardian.com/business/economics",
						"https://www.theguardian.com/technology",
					}},
					{Name: "environment", URLs: []string{
						"https://www.theguardian.com/environment",
						"https://www.theguardian.com/environment/climate-change",
					}},
					{Name: "science", URLs: []string{
						"https://www.theguardian.com/science",
						"https://www.theguardian.com/science/medical-research",
					}},
					{Name: "culture", URLs: []string{
						"https://www.theguardian.com/culture",
						"https://www.theguardian.com/film",
						"https://www.theguardian.com/books",
					}},
					{Name: "sport", URLs: []string{
						"https://www.theguardian.com/sport",
						"https://www.theguardian.com/football",
					}},
				},
			},
		},
	}
}
