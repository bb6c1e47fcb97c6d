package config

// Config represents the full application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	GitLab        GitLabConfig        `yaml:"gitlab"`
	GitHub        GitHubConfig        `yaml:"github"`
	Model         ModelConfig         `yaml:"model"`
	Review        ReviewConfig        `yaml:"review"`
	Git           GitConfig           `yaml:"git"`
	Store         StoreConfig         `yaml:"store"`
	Output        OutputConfig        `yaml:"output"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the webhook HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"readTimeout"`
	WriteTimeout string `yaml:"writeTimeout"`
}

// GitLabConfig configures the GitLab collaborator.
type GitLabConfig struct {
	Enabled       bool   `yaml:"enabled"`
	APIURL        string `yaml:"apiURL"`
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhookSecret"`
}

// GitHubConfig configures the GitHub collaborator.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// ModelConfig configures the chat-completion endpoint used for reviews.
type ModelConfig struct {
	BaseURL     string  `yaml:"baseURL"`
	APIKey      string  `yaml:"apiKey"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// ReviewConfig configures review behavior.
type ReviewConfig struct {
	// MaxComments caps the number of inline comments emitted per cycle.
	MaxComments int `yaml:"maxComments"`

	// SummaryEnabled posts a change-set level summary note in addition to
	// inline comments.
	SummaryEnabled bool `yaml:"summaryEnabled"`

	// FetchConcurrency bounds simultaneous pre-change file fetches.
	FetchConcurrency int `yaml:"fetchConcurrency"`

	// MaxPromptTokens bounds the estimated prompt size per model call.
	MaxPromptTokens int `yaml:"maxPromptTokens"`
}

// GitConfig configures local repository review.
type GitConfig struct {
	RepositoryDir string `yaml:"repositoryDir"`
}

// StoreConfig configures the posted-comment ledger.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OutputConfig configures local report output.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level"`         // debug, info, error
	Format        string `yaml:"format"`        // json, human, auto
	RedactAPIKeys bool   `yaml:"redactAPIKeys"` // Redact API keys in logs
}
