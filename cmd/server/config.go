package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/chat-session-core/internal/models"
	"github.com/MegaGrindStone/chat-session-core/internal/services"
	"github.com/MegaGrindStone/chat-session-core/internal/session"
	"gopkg.in/yaml.v3"
)

type generatorConfig interface {
	generator(systemPrompt string, logger *slog.Logger) (session.Generator, error)
}

// BaseGeneratorConfig contains the common fields for all generator configurations.
type BaseGeneratorConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port          string          `yaml:"port"`
	UserID        string          `yaml:"userId"`
	SystemPrompt  string          `yaml:"systemPrompt"`
	RevealDelayMs int             `yaml:"revealDelayMs"`
	Generator     generatorConfig `yaml:"generator"`
	Workspace     workspaceConfig `yaml:"workspace"`
}

type workspaceConfig struct {
	ID                           string   `yaml:"id"`
	Name                         string   `yaml:"name"`
	DefaultModel                 string   `yaml:"defaultModel"`
	DefaultPrompt                string   `yaml:"defaultPrompt"`
	DefaultTemperature           *float64 `yaml:"defaultTemperature"`
	DefaultContextLength         *int     `yaml:"defaultContextLength"`
	IncludeProfileContext        *bool    `yaml:"includeProfileContext"`
	IncludeWorkspaceInstructions *bool    `yaml:"includeWorkspaceInstructions"`
	EmbeddingsProvider           string   `yaml:"embeddingsProvider"`
}

type remoteConfig struct {
	BaseGeneratorConfig `yaml:",inline"`
	URL                 string `yaml:"url"`
}

type ollamaConfig struct {
	BaseGeneratorConfig `yaml:",inline"`
	Host                string `yaml:"host"`
}

type openaiConfig struct {
	BaseGeneratorConfig `yaml:",inline"`
	APIKey              string `yaml:"apiKey"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string          `yaml:"port"`
		UserID        string          `yaml:"userId"`
		SystemPrompt  string          `yaml:"systemPrompt"`
		RevealDelayMs int             `yaml:"revealDelayMs"`
		Generator     map[string]any  `yaml:"generator"`
		Workspace     workspaceConfig `yaml:"workspace"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.UserID = rawConfig.UserID
	c.SystemPrompt = rawConfig.SystemPrompt
	c.RevealDelayMs = rawConfig.RevealDelayMs
	c.Workspace = rawConfig.Workspace

	provider, ok := rawConfig.Generator["provider"].(string)
	if !ok {
		return fmt.Errorf("generator provider is required")
	}

	genRawYAML, err := yaml.Marshal(rawConfig.Generator)
	if err != nil {
		return err
	}

	var gen generatorConfig
	switch provider {
	case "remote":
		gen = &remoteConfig{}
	case "ollama":
		gen = &ollamaConfig{}
	case "openai":
		gen = &openaiConfig{}
	default:
		return fmt.Errorf("unknown generator provider: %s", provider)
	}

	if err := yaml.Unmarshal(genRawYAML, gen); err != nil {
		return err
	}

	c.Generator = gen
	return nil
}

func (c config) revealDelay() time.Duration {
	if c.RevealDelayMs < 0 {
		return -1
	}
	return time.Duration(c.RevealDelayMs) * time.Millisecond
}

func (c config) workspace() models.Workspace {
	return models.Workspace{
		ID:                           c.Workspace.ID,
		Name:                         c.Workspace.Name,
		DefaultModel:                 c.Workspace.DefaultModel,
		DefaultPrompt:                c.Workspace.DefaultPrompt,
		DefaultTemperature:           c.Workspace.DefaultTemperature,
		DefaultContextLength:         c.Workspace.DefaultContextLength,
		IncludeProfileContext:        c.Workspace.IncludeProfileContext,
		IncludeWorkspaceInstructions: c.Workspace.IncludeWorkspaceInstructions,
		EmbeddingsProvider:           c.Workspace.EmbeddingsProvider,
	}
}

func (r remoteConfig) generator(_ string, logger *slog.Logger) (session.Generator, error) {
	if r.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return services.NewRemote(r.URL, logger), nil
}

func (o ollamaConfig) generator(systemPrompt string, _ *slog.Logger) (session.Generator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt), nil
}

func (o openaiConfig) generator(systemPrompt string, logger *slog.Logger) (session.Generator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.Model, systemPrompt, logger), nil
}
