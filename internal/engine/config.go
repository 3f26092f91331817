package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all pipeline configuration, built once in main and passed down.
type Config struct {
	// Event selection.
	EventName   string
	EventYear   string
	ChannelPath string
	PlaylistID  string
	TitleMatch  string
	MaxPages    int
	PageDelay   time.Duration
	Timezone    string

	// Ledger.
	LedgerBackend string // sqlite, postgres, mongo, dynamodb, memory
	SQLitePath    string
	DatabaseURL   string
	MongoURI      string
	MongoDB       string
	DynamoTable   string
	ScanPageSize  int

	// Archive sink.
	ArchiveSink   string // s3, dir
	S3Bucket      string
	ArchiveDir    string
	ArchivePrefix string

	// Generative model.
	ModelProvider      string // bedrock, openai
	ModelID            string
	ModelFallbackID    string // empty = oversized input is terminal for the item
	ModelMaxTokens     int
	ModelTemperature   float64
	ModelTopP          float64
	LLMAPIBase         string
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	AWSRegion          string

	// Fetching and page cache.
	FetchTimeout         time.Duration
	RedisURL             string
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client

	// Logging and serving.
	LogLevel  string
	LogFormat string
	LogFile   string
	MCPPort   string
}

// fileConfig mirrors the optional TOML config file. Every value seeds the
// default for the matching environment variable.
type fileConfig struct {
	Event struct {
		Name        string `toml:"name"`
		Year        string `toml:"year"`
		ChannelPath string `toml:"channel_path"`
		PlaylistID  string `toml:"playlist_id"`
		TitleMatch  string `toml:"title_match"`
		MaxPages    int    `toml:"max_pages"`
		Timezone    string `toml:"timezone"`
	} `toml:"event"`
	Ledger struct {
		Backend      string `toml:"backend"`
		SQLitePath   string `toml:"sqlite_path"`
		DatabaseURL  string `toml:"database_url"`
		MongoURI     string `toml:"mongo_uri"`
		MongoDB      string `toml:"mongo_db"`
		DynamoTable  string `toml:"dynamo_table"`
		ScanPageSize int    `toml:"scan_page_size"`
	} `toml:"ledger"`
	Archive struct {
		Sink     string `toml:"sink"`
		S3Bucket string `toml:"s3_bucket"`
		Dir      string `toml:"dir"`
		Prefix   string `toml:"prefix"`
	} `toml:"archive"`
	Model struct {
		Provider    string  `toml:"provider"`
		ID          string  `toml:"id"`
		FallbackID  string  `toml:"fallback_id"`
		MaxTokens   int     `toml:"max_tokens"`
		Temperature float64 `toml:"temperature"`
		TopP        float64 `toml:"top_p"`
		APIBase     string  `toml:"api_base"`
		AWSRegion   string  `toml:"aws_region"`
	} `toml:"model"`
	Fetch struct {
		TimeoutSeconds   int    `toml:"timeout_seconds"`
		PageDelaySeconds int    `toml:"page_delay_seconds"`
		RedisURL         string `toml:"redis_url"`
		CacheTTLMinutes  int    `toml:"cache_ttl_minutes"`
	} `toml:"fetch"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"logging"`
}

func defaultFileConfig() fileConfig {
	var fc fileConfig
	fc.Event.Name = "re:Invent"
	fc.Event.Year = "2024"
	fc.Event.ChannelPath = "/@AWSEventsChannel/videos"
	fc.Event.TitleMatch = "AWS re:Invent 2024"
	fc.Event.MaxPages = 35
	fc.Event.Timezone = "US/Eastern"
	fc.Ledger.Backend = "sqlite"
	fc.Ledger.SQLitePath = "youtube_video_data.db"
	fc.Ledger.MongoDB = "youtube"
	fc.Ledger.DynamoTable = "youtube_video_data"
	fc.Ledger.ScanPageSize = 100
	fc.Archive.Sink = "dir"
	fc.Archive.Dir = "archive"
	fc.Archive.Prefix = "youtube_transcripts_with_summary/"
	fc.Model.Provider = "bedrock"
	fc.Model.ID = "us.anthropic.claude-3-haiku-20240307-v1:0"
	fc.Model.MaxTokens = 4096
	fc.Model.Temperature = 0.0
	fc.Model.TopP = 0.9
	fc.Model.APIBase = "https://generativelanguage.googleapis.com/v1beta/openai"
	fc.Model.AWSRegion = "us-west-2"
	fc.Fetch.TimeoutSeconds = 15
	fc.Fetch.PageDelaySeconds = 1
	fc.Fetch.CacheTTLMinutes = 30
	fc.Logging.Level = "info"
	return fc
}

// LoadConfig resolves configuration from defaults, an optional TOML file and
// the environment, in increasing order of precedence. A missing file at path is
// an error only when path was given explicitly.
func LoadConfig(path string) (Config, error) {
	fc := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("config: %s not found", path)
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c := Config{
		EventName:   env.Str("EVENT_NAME", fc.Event.Name),
		EventYear:   env.Str("EVENT_YEAR", fc.Event.Year),
		ChannelPath: env.Str("CHANNEL_PATH", fc.Event.ChannelPath),
		PlaylistID:  env.Str("PLAYLIST_ID", fc.Event.PlaylistID),
		TitleMatch:  env.Str("TITLE_MATCH", fc.Event.TitleMatch),
		MaxPages:    env.Int("MAX_PAGES", fc.Event.MaxPages),
		PageDelay:   env.Duration("PAGE_DELAY", time.Duration(fc.Fetch.PageDelaySeconds)*time.Second),
		Timezone:    env.Str("TIMEZONE", fc.Event.Timezone),

		LedgerBackend: strings.ToLower(env.Str("LEDGER_BACKEND", fc.Ledger.Backend)),
		SQLitePath:    env.Str("SQLITE_PATH", fc.Ledger.SQLitePath),
		DatabaseURL:   env.Str("DATABASE_URL", fc.Ledger.DatabaseURL),
		MongoURI:      env.Str("MONGO_URI", fc.Ledger.MongoURI),
		MongoDB:       env.Str("MONGO_DB", fc.Ledger.MongoDB),
		DynamoTable:   env.Str("DYNAMO_TABLE", fc.Ledger.DynamoTable),
		ScanPageSize:  env.Int("SCAN_PAGE_SIZE", fc.Ledger.ScanPageSize),

		ArchiveSink:   strings.ToLower(env.Str("ARCHIVE_SINK", fc.Archive.Sink)),
		S3Bucket:      env.Str("S3_BUCKET", fc.Archive.S3Bucket),
		ArchiveDir:    env.Str("ARCHIVE_DIR", fc.Archive.Dir),
		ArchivePrefix: env.Str("ARCHIVE_PREFIX", fc.Archive.Prefix),

		ModelProvider:      strings.ToLower(env.Str("MODEL_PROVIDER", fc.Model.Provider)),
		ModelID:            env.Str("MODEL_ID", fc.Model.ID),
		ModelFallbackID:    env.Str("MODEL_FALLBACK_ID", fc.Model.FallbackID),
		ModelMaxTokens:     env.Int("MODEL_MAX_TOKENS", fc.Model.MaxTokens),
		ModelTemperature:   env.Float("MODEL_TEMPERATURE", fc.Model.Temperature),
		ModelTopP:          env.Float("MODEL_TOP_P", fc.Model.TopP),
		LLMAPIBase:         env.Str("LLM_API_BASE", fc.Model.APIBase),
		LLMAPIKey:          env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks: env.List("LLM_API_KEY_FALLBACKS", ""),
		AWSRegion:          env.Str("AWS_REGION", fc.Model.AWSRegion),

		FetchTimeout:         env.Duration("FETCH_TIMEOUT", time.Duration(fc.Fetch.TimeoutSeconds)*time.Second),
		RedisURL:             env.Str("REDIS_URL", fc.Fetch.RedisURL),
		CacheTTL:             env.Duration("CACHE_TTL", time.Duration(fc.Fetch.CacheTTLMinutes)*time.Minute),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 500),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),

		LogLevel:  env.Str("LOG_LEVEL", fc.Logging.Level),
		LogFormat: env.Str("LOG_FORMAT", fc.Logging.Format),
		LogFile:   env.Str("LOG_FILE", fc.Logging.File),
		MCPPort:   env.Str("MCP_PORT", "8893"),
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.LedgerBackend {
	case "sqlite", "postgres", "mongo", "dynamodb", "memory":
	default:
		return fmt.Errorf("config: unsupported ledger backend %q", c.LedgerBackend)
	}
	switch c.ArchiveSink {
	case "s3", "dir":
	default:
		return fmt.Errorf("config: unsupported archive sink %q", c.ArchiveSink)
	}
	switch c.ModelProvider {
	case "bedrock", "openai":
	default:
		return fmt.Errorf("config: unsupported model provider %q", c.ModelProvider)
	}
	if c.EventYear == "" {
		return errors.New("config: event year is required")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("config: max pages must be >= 0, got %d", c.MaxPages)
	}
	if c.ScanPageSize <= 0 {
		return fmt.Errorf("config: scan page size must be > 0, got %d", c.ScanPageSize)
	}
	return nil
}

// Location returns the configured timezone, falling back to the local zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ListingLocator returns the path the listing discoverer should start from:
// the playlist when one is configured, the channel videos tab otherwise.
func (c Config) ListingLocator() string {
	if c.PlaylistID != "" {
		return "/playlist?list=" + c.PlaylistID
	}
	return c.ChannelPath
}

// PlaylistURL is the provenance URL stored on each record.
func (c Config) PlaylistURL() string {
	return "https://www.youtube.com/playlist?list=" + c.PlaylistID
}
