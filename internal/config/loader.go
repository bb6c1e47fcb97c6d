package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "inline-reviewer"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "IR"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return expandEnvVars(cfg), nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.GitLab.APIURL = expandEnvString(cfg.GitLab.APIURL)
	cfg.GitLab.Token = expandEnvString(cfg.GitLab.Token)
	cfg.GitLab.WebhookSecret = expandEnvString(cfg.GitLab.WebhookSecret)

	cfg.GitHub.Token = expandEnvString(cfg.GitHub.Token)

	cfg.Model.BaseURL = expandEnvString(cfg.Model.BaseURL)
	cfg.Model.APIKey = expandEnvString(cfg.Model.APIKey)
	cfg.Model.Name = expandEnvString(cfg.Model.Name)

	cfg.Git.RepositoryDir = expandEnvString(cfg.Git.RepositoryDir)
	cfg.Store.Path = expandEnvString(cfg.Store.Path)
	cfg.Output.Directory = expandEnvString(cfg.Output.Directory)

	cfg.Observability.Logging.Level = expandEnvString(cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = expandEnvString(cfg.Observability.Logging.Format)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	// Replace ${VAR} syntax
	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	// Replace $VAR syntax (without braces)
	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "20s")

	v.SetDefault("gitlab.enabled", false)
	v.SetDefault("gitlab.apiURL", "https://gitlab.com/api/v4")

	v.SetDefault("github.enabled", false)

	v.SetDefault("model.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.timeout", "60s")

	v.SetDefault("review.maxComments", 3)
	v.SetDefault("review.summaryEnabled", true)
	v.SetDefault("review.fetchConcurrency", 6)
	v.SetDefault("review.maxPromptTokens", 32_000)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", defaultStorePath())

	v.SetDefault("output.directory", "out")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "auto")
	v.SetDefault("observability.logging.redactAPIKeys", true)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".inline-reviewer", "reviews.db")
	}
	return filepath.Join(home, ".inline-reviewer", "reviews.db")
}
