package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"docqa/pkg/ai"
)

// ConfigPath is the file read when no explicit path is given.
const ConfigPath = "config.yaml"

const (
	defaultPort                   = "3000"
	defaultLogLevel               = "info"
	defaultUploadDir              = "data/uploads"
	defaultChunkSizeWords         = 500
	defaultSearchLimit            = 3
	defaultMaxUploadFiles         = 5
	defaultMaxFileSizeMB          = 10
	defaultExtractConcurrency     = 4
	defaultShutdownTimeoutSeconds = 10
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFile   string `yaml:"logFile"`
	UploadDir string `yaml:"uploadDir"`
	StaticDir string `yaml:"staticDir"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`

	RedisAddr                string `yaml:"redisAddr"`
	RedisPassword            string `yaml:"redisPassword"`
	ChatRateLimitPerMinute   int    `yaml:"chatRateLimitPerMinute"`
	UploadRateLimitPerMinute int    `yaml:"uploadRateLimitPerMinute"`

	GenerationProvider       string `yaml:"generationProvider"`
	GenerationModel          string `yaml:"generationModel"`
	GenerationBaseURL        string `yaml:"generationBaseURL"`
	GenerationAPIKey         string `yaml:"generationAPIKey"`
	GeminiAPIKey             string `yaml:"geminiAPIKey"`
	GenerationTimeoutSeconds int    `yaml:"generationTimeoutSeconds"`

	ChunkSizeWords         int `yaml:"chunkSizeWords"`
	SearchLimit            int `yaml:"searchLimit"`
	MaxUploadFiles         int `yaml:"maxUploadFiles"`
	MaxFileSizeMB          int `yaml:"maxFileSizeMB"`
	ExtractConcurrency     int `yaml:"extractConcurrency"`
	ShutdownTimeoutSeconds int `yaml:"shutdownTimeoutSeconds"`
}

// Load reads config from path, applies environment overrides and defaults,
// then validates. With an empty path ConfigPath is used and a missing file is
// not an error.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	optional := false
	if path == "" {
		path = ConfigPath
		optional = true
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// APIKey returns the key for the configured generation provider.
func (c FileConfig) APIKey() string {
	if strings.EqualFold(c.provider(), ai.ProviderGemini) && c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.GenerationAPIKey
}

// MaxFileBytes is the per-file upload limit in bytes.
func (c FileConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func (c FileConfig) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.GenerationProvider))
	if p == "" {
		return ai.ProviderGemini
	}
	return p
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	envInt("CHAT_RATE_LIMIT_PER_MINUTE", &cfg.ChatRateLimitPerMinute)
	envInt("UPLOAD_RATE_LIMIT_PER_MINUTE", &cfg.UploadRateLimitPerMinute)
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	envInt("GENERATION_TIMEOUT_SECONDS", &cfg.GenerationTimeoutSeconds)
	envInt("CHUNK_SIZE_WORDS", &cfg.ChunkSizeWords)
	envInt("SEARCH_LIMIT", &cfg.SearchLimit)
	envInt("MAX_UPLOAD_FILES", &cfg.MaxUploadFiles)
	envInt("MAX_FILE_SIZE_MB", &cfg.MaxFileSizeMB)
	envInt("EXTRACT_CONCURRENCY", &cfg.ExtractConcurrency)
	envInt("SHUTDOWN_TIMEOUT_SECONDS", &cfg.ShutdownTimeoutSeconds)
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ai.ProviderGemini
	}
	if cfg.GenerationModel == "" && cfg.provider() == ai.ProviderGemini {
		cfg.GenerationModel = ai.DefaultGeminiModel
	}
	if cfg.ChunkSizeWords == 0 {
		cfg.ChunkSizeWords = defaultChunkSizeWords
	}
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.MaxUploadFiles == 0 {
		cfg.MaxUploadFiles = defaultMaxUploadFiles
	}
	if cfg.MaxFileSizeMB == 0 {
		cfg.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if cfg.ExtractConcurrency == 0 {
		cfg.ExtractConcurrency = defaultExtractConcurrency
	}
	if cfg.ShutdownTimeoutSeconds == 0 {
		cfg.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
}

func validateConfig(cfg FileConfig) error {
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return errors.New("config: port must be numeric (set in config.yaml or PORT)")
	}
	switch cfg.provider() {
	case ai.ProviderGemini:
		if strings.TrimSpace(cfg.APIKey()) == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
	case ai.ProviderOllama:
		if strings.TrimSpace(cfg.GenerationModel) == "" {
			return errors.New("config: generationModel is required for ollama (set in config.yaml or GENERATION_MODEL)")
		}
	case ai.ProviderOpenAICompat:
		if strings.TrimSpace(cfg.GenerationBaseURL) == "" || strings.TrimSpace(cfg.GenerationModel) == "" {
			return errors.New("config: openai-compat requires generationBaseURL + generationModel")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.ChunkSizeWords <= 0 {
		return errors.New("config: chunkSizeWords must be > 0 (set in config.yaml or CHUNK_SIZE_WORDS)")
	}
	if cfg.SearchLimit <= 0 {
		return errors.New("config: searchLimit must be > 0")
	}
	if cfg.MaxUploadFiles <= 0 {
		return errors.New("config: maxUploadFiles must be > 0")
	}
	if cfg.MaxFileSizeMB <= 0 {
		return errors.New("config: maxFileSizeMB must be > 0")
	}
	if cfg.ExtractConcurrency <= 0 {
		return errors.New("config: extractConcurrency must be > 0")
	}
	if cfg.ChatRateLimitPerMinute < 0 || cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0 (0 disables)")
	}
	if cfg.GenerationTimeoutSeconds < 0 {
		return errors.New("config: generationTimeoutSeconds must be >= 0")
	}
	if cfg.ShutdownTimeoutSeconds < 0 {
		return errors.New("config: shutdownTimeoutSeconds must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
