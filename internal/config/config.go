// Package config provides centralized configuration for the vidrelay pipeline.
// All configurable values are loaded from environment variables with sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all pipeline configuration values.
type Config struct {
	// Port is the status API listen port.
	Port string

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// DataDir is the root directory for downloaded media, subtitles,
	// generated content and the run lock.
	DataDir string

	// PollInterval is how often the controller runs a discovery + retry pass.
	PollInterval time.Duration

	// MaxVideoDuration is the skip ceiling: discovered videos longer than this
	// are marked skipped before any work starts. Zero disables the check.
	MaxVideoDuration time.Duration

	// DownloadTimeout bounds one yt-dlp invocation.
	DownloadTimeout time.Duration

	// TranscribeTimeout bounds one transcription tool run.
	TranscribeTimeout time.Duration

	// GenerateTimeout bounds one content-generation call.
	GenerateTimeout time.Duration

	// PublishTimeout bounds one browser-automation publish run.
	PublishTimeout time.Duration

	// NotifyTimeout bounds one outgoing email.
	NotifyTimeout time.Duration

	// RetryMaxAttempts bounds attempts per video and stage.
	RetryMaxAttempts int

	// RetryBaseDelay is the wait after the first failure; it doubles per
	// failure up to RetryMaxDelay.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the retry backoff.
	RetryMaxDelay time.Duration

	// YouTubeAPIKey authenticates read-only Data API calls.
	YouTubeAPIKey string

	// YouTubeClientID, YouTubeClientSecret and YouTubeRefreshToken form the
	// OAuth client used for playlist cleanup after publish. Discovery uses
	// the API key when these are unset.
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string

	// PlaylistID is the source playlist to poll for new videos.
	PlaylistID string

	// YtDlpPath is the yt-dlp executable.
	YtDlpPath string

	// MaxHeight caps the downloaded video resolution.
	MaxHeight int

	// TranscribeCommand is the external subtitling tool executable.
	TranscribeCommand string

	// LLMProvider selects which LLM backend to use: "openai", "claude", "gemini", "ollama".
	LLMProvider string

	// OpenAIKey is the API key for the OpenAI service.
	OpenAIKey string

	// OpenAIModel is the model identifier for OpenAI completions.
	OpenAIModel string

	// AnthropicKey is the API key for the Anthropic Claude service.
	AnthropicKey string

	// AnthropicModel is the model identifier for Claude completions.
	AnthropicModel string

	// GeminiKey is the API key for the Google Gemini service.
	GeminiKey string

	// GeminiModel is the model identifier for Gemini completions.
	GeminiModel string

	// OllamaURL is the base URL for the local Ollama server.
	OllamaURL string

	// OllamaModel is the model identifier for Ollama completions.
	OllamaModel string

	// HTTPTimeout is the timeout for outgoing HTTP requests (LLM, preflight).
	HTTPTimeout time.Duration

	// ContentLanguage is the locale the social copy is written in.
	ContentLanguage string

	// GenerateNotes enables the optional learning-notes pass after content
	// generation.
	GenerateNotes bool

	// PublishCommand is the browser-automation executable that posts content.
	PublishCommand string

	// AccountsFile is the YAML file describing publish account profiles.
	AccountsFile string

	// PublishAccount selects the account profile used for automated posting.
	PublishAccount string

	// SMTPHost, SMTPPort, SMTPUser and SMTPPassword configure the outgoing
	// mail server. The user doubles as the sender address.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	// EmailTo receives outcome and summary notifications. Empty disables email.
	EmailTo string
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	return Config{
		Port:              envOr("PORT", "8080"),
		CORSOrigin:        envOr("CORS_ORIGIN", "*"),
		DBPath:            envOr("DB_PATH", "vidrelay.db"),
		DataDir:           envOr("DATA_DIR", "data"),
		PollInterval:      envDuration("POLL_INTERVAL", 15*time.Minute),
		MaxVideoDuration:  envDuration("MAX_VIDEO_DURATION", time.Hour),
		DownloadTimeout:   envDuration("DOWNLOAD_TIMEOUT", 30*time.Minute),
		TranscribeTimeout: envDuration("TRANSCRIBE_TIMEOUT", 2*time.Hour),
		GenerateTimeout:   envDuration("GENERATE_TIMEOUT", 2*time.Minute),
		PublishTimeout:    envDuration("PUBLISH_TIMEOUT", 10*time.Minute),
		NotifyTimeout:     envDuration("NOTIFY_TIMEOUT", time.Minute),
		RetryMaxAttempts:  envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:    envDuration("RETRY_BASE_DELAY", 30*time.Second),
		RetryMaxDelay:     envDuration("RETRY_MAX_DELAY", 10*time.Minute),

		YouTubeAPIKey:       os.Getenv("YOUTUBE_API_KEY"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
		PlaylistID:          os.Getenv("YOUTUBE_PLAYLIST_ID"),

		YtDlpPath:         envOr("YTDLP_PATH", "yt-dlp"),
		MaxHeight:         envInt("MAX_VIDEO_HEIGHT", 720),
		TranscribeCommand: envOr("TRANSCRIBE_COMMAND", "videolingo-batch"),

		LLMProvider:     envOr("LLM_PROVIDER", "openai"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaURL:       envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     envOr("OLLAMA_MODEL", "llama3"),
		HTTPTimeout:     envDuration("HTTP_TIMEOUT", 60*time.Second),
		ContentLanguage: envOr("CONTENT_LANGUAGE", "zh-CN"),
		GenerateNotes:   envBool("GENERATE_NOTES", false),

		PublishCommand: envOr("PUBLISH_COMMAND", "xhs-uploader"),
		AccountsFile:   envOr("ACCOUNTS_FILE", "accounts.yaml"),
		PublishAccount: envOr("PUBLISH_ACCOUNT", "auto"),

		SMTPHost:     envOr("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		EmailTo:      os.Getenv("EMAIL_TO"),
	}
}

// UseStubs returns true when no LLM API key is configured for the selected provider.
func (c Config) UseStubs() bool {
	switch c.LLMProvider {
	case "claude":
		return c.AnthropicKey == ""
	case "gemini":
		return c.GeminiKey == ""
	case "ollama":
		return false // Ollama runs locally, no key needed
	default:
		return c.OpenAIKey == ""
	}
}

// HasSMTP returns true when outgoing email is fully configured.
func (c Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPassword != "" && c.EmailTo != ""
}

// HasOAuth returns true when the playlist-cleanup OAuth client is configured.
func (c Config) HasOAuth() bool {
	return c.YouTubeClientID != "" && c.YouTubeClientSecret != "" && c.YouTubeRefreshToken != ""
}

// HasDiscovery returns true when the playlist source can be polled.
func (c Config) HasDiscovery() bool {
	return c.PlaylistID != "" && (c.YouTubeAPIKey != "" || c.HasOAuth())
}

// MediaDir is where downloaded media lands.
func (c Config) MediaDir() string { return filepath.Join(c.DataDir, "media") }

// SubtitleDir is where subtitle artifacts are collected.
func (c Config) SubtitleDir() string { return filepath.Join(c.DataDir, "subtitles") }

// ContentDir holds generated content files, one directory per video.
func (c Config) ContentDir() string { return filepath.Join(c.DataDir, "content") }

// LockDir is the run-overlap guard directory.
func (c Config) LockDir() string { return filepath.Join(c.DataDir, "run.lock") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
