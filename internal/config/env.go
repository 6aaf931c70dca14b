package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const defaultOllamaHost = "http://localhost:11434"

// Credentials holds backend endpoints and keys read from the environment.
type Credentials struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GrokAPIKey      string
	OllamaHost      string
}

// LoadEnv loads the dotenv file when present. Existing variables win.
func LoadEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// CredentialsFromEnv reads backend credentials from the process environment.
func CredentialsFromEnv() Credentials {
	c := Credentials{
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		AnthropicAPIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		GrokAPIKey:      strings.TrimSpace(os.Getenv("GROK_API_KEY")),
		OllamaHost:      strings.TrimSpace(os.Getenv("OLLAMA_HOST")),
	}
	if c.OllamaHost == "" {
		c.OllamaHost = defaultOllamaHost
	}
	return c
}
