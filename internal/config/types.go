package config

// Config represents the complete easyconnect configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	Listen       string        `yaml:"listen"`
	StorePath    string        `yaml:"store_path"`
	EventsDBPath string        `yaml:"events_db_path"`
	API          APIConfig     `yaml:"api,omitempty"`
	Notion       NotionConfig  `yaml:"notion"`
	Webhook      WebhookConfig `yaml:"webhook,omitempty"`
	LLM          LLMConfig     `yaml:"llm,omitempty"`
}

// APIConfig defines admin API authentication settings.
type APIConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// NotionConfig defines the external platform connection.
// ClientID, ClientSecret, RedirectURI and CallbackURL are validated lazily
// per-request by the OAuth handlers, not at startup.
type NotionConfig struct {
	APIBase      string `yaml:"api_base"`
	Version      string `yaml:"version"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`

	// CallbackURL is the single webhook callback URL handed to users and
	// registered with subscriptions.
	CallbackURL string `yaml:"callback_url"`
}

// WebhookConfig defines webhook verification settings.
type WebhookConfig struct {
	// Policy selects the verification strategy:
	// "signature_only" or "signature_or_automation_secret".
	Policy string `yaml:"policy"`

	// MaxBodySize is the request body limit (e.g. "1MB", "2048576").
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// LLMConfig defines the chat-completion proxy settings.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LogLevel:     "info",
		Listen:       "127.0.0.1:8080",
		StorePath:    "data/notion_store.json",
		EventsDBPath: "data/events.db",
		Notion: NotionConfig{
			APIBase: "https://api.notion.com",
			Version: "2022-06-28",
		},
		Webhook: WebhookConfig{
			Policy:      "signature_or_automation_secret",
			MaxBodySize: "1MB",
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
	}
}
