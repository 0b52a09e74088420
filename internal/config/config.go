package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultStyleDirective is the fixed natural-language instruction sent with
// every upstream request. It is configuration, not user input.
const DefaultStyleDirective = "Redraw this photo as a hand-painted storybook illustration: soft " +
	"watercolor textures, warm natural lighting, gentle pastel palette, and " +
	"clean painterly outlines. Keep the original composition, subjects, and " +
	"framing intact; change only the rendering style."

type Config struct {
	Proxy      ProxyConfig
	Upstream   UpstreamConfig
	Client     ClientConfig
	Preprocess PreprocessConfig
	Telemetry  TelemetryConfig
}

type ProxyConfig struct {
	Addr string

	// UpstreamTimeout bounds the upstream call on the standard route;
	// LongUpstreamTimeout applies on the long-running fallback route.
	UpstreamTimeout     time.Duration
	LongUpstreamTimeout time.Duration
}

type UpstreamConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	StyleDirective string
	OutputSize     string
	Quality        string
}

type ClientConfig struct {
	PrimaryURL      string
	FallbackURL     string
	AttemptTimeout  time.Duration
	FallbackTimeout time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

type PreprocessConfig struct {
	MaxEdge     int
	JPEGQuality int
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads configuration from the environment, after a best-effort .env
// load for development setups. Values are read once at process start and
// never mutated.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Proxy: ProxyConfig{
			Addr:                env("RESTYLE_PROXY_ADDR", ":8080"),
			UpstreamTimeout:     envDuration("RESTYLE_UPSTREAM_TIMEOUT", 120*time.Second),
			LongUpstreamTimeout: envDuration("RESTYLE_UPSTREAM_LONG_TIMEOUT", 280*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:        env("RESTYLE_UPSTREAM_BASE_URL", "https://api.openai.com"),
			APIKey:         env("RESTYLE_UPSTREAM_API_KEY", ""),
			Model:          env("RESTYLE_UPSTREAM_MODEL", "gpt-image-1"),
			StyleDirective: env("RESTYLE_STYLE_DIRECTIVE", DefaultStyleDirective),
			OutputSize:     env("RESTYLE_OUTPUT_SIZE", "1024x1024"),
			Quality:        env("RESTYLE_OUTPUT_QUALITY", "medium"),
		},
		Client: ClientConfig{
			PrimaryURL:      env("RESTYLE_ENDPOINT", "http://localhost:8080/v1/transform"),
			FallbackURL:     env("RESTYLE_FALLBACK_ENDPOINT", "http://localhost:8080/v1/transform/long"),
			AttemptTimeout:  envDuration("RESTYLE_ATTEMPT_TIMEOUT", 90*time.Second),
			FallbackTimeout: envDuration("RESTYLE_FALLBACK_TIMEOUT", 300*time.Second),
			MaxRetries:      envInt("RESTYLE_MAX_RETRIES", 2),
			InitialBackoff:  envDuration("RESTYLE_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:      envDuration("RESTYLE_MAX_BACKOFF", 8*time.Second),
		},
		Preprocess: PreprocessConfig{
			MaxEdge:     envInt("RESTYLE_MAX_EDGE", 1024),
			JPEGQuality: envInt("RESTYLE_JPEG_QUALITY", 85),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  env("RESTYLE_SERVICE_NAME", "restyle-proxy"),
			Exporter:     env("RESTYLE_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("RESTYLE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("RESTYLE_OTLP_INSECURE", false),
		},
	}
}

// credentialPlaceholders are values that show up when someone copies a
// sample config without filling in a real key.
var credentialPlaceholders = []string{
	"your-api-key",
	"your_api_key",
	"api-key-here",
	"changeme",
	"replace-me",
	"placeholder",
}

// CredentialConfigured reports whether the upstream credential looks like a
// real value rather than an absent or obviously-unconfigured placeholder.
func (u UpstreamConfig) CredentialConfigured() bool {
	key := strings.TrimSpace(u.APIKey)
	if key == "" {
		return false
	}
	if strings.ContainsAny(key, "<>") {
		return false
	}

	lower := strings.ToLower(key)
	for _, placeholder := range credentialPlaceholders {
		if strings.Contains(lower, placeholder) {
			return false
		}
	}
	return true
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
