package openai

// Config carries the OpenAI connection settings, parsed from the
// environment by the config package. Each field maps onto an SDK
// request option in NewProvider (API key, base URL, request timeout in
// seconds, retry count). An empty APIKey is not an error here: startup
// falls back to the placeholder provider instead.
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	Timeout    int    `env:"OPENAI_TIMEOUT"     envDefault:"60"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"3"`
}
