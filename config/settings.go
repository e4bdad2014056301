// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/svjt78/ragmesh/ai"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGMESH"

// Settings is the process-level configuration.
type Settings struct {
	// DataDir holds the BadgerDB files.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// RunsDir holds one directory per run.
	RunsDir string `yaml:"runs_dir" env:"RUNS_DIR"`

	// ProfilesDir is scanned for profile YAML files. Missing is fine.
	ProfilesDir string `yaml:"profiles_dir" env:"PROFILES_DIR"`

	// Workers sizes the ingestion pools.
	Workers int `yaml:"workers" env:"WORKERS"`

	// JudgeWorkers bounds concurrent tier-A judge checks.
	JudgeWorkers int `yaml:"judge_workers" env:"JUDGE_WORKERS"`

	// SessionTTL evicts idle chat sessions.
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	AI AISettings `yaml:"ai" env:"AI"`
}

// AISettings mirrors the subset of ai.Config exposed to operators.
type AISettings struct {
	EmbeddingHost  string        `yaml:"embedding_host" env:"EMBEDDING_HOST"`
	ChatHost       string        `yaml:"chat_host" env:"CHAT_HOST"`
	EmbeddingModel string        `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	ChatModel      string        `yaml:"chat_model" env:"CHAT_MODEL"`
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	Encoding       string        `yaml:"encoding" env:"ENCODING"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	aiDefaults := ai.DefaultConfig()
	return &Settings{
		DataDir:      "data/db",
		RunsDir:      "data/runs",
		ProfilesDir:  "profiles",
		Workers:      8,
		JudgeWorkers: 5,
		SessionTTL:   time.Hour,
		LogLevel:     "info",
		AI: AISettings{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			ChatHost:       aiDefaults.ChatHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			ChatModel:      aiDefaults.ChatModel,
			APIKey:         aiDefaults.APIKey,
			Encoding:       aiDefaults.Encoding,
			MaxRetries:     aiDefaults.MaxRetries,
			RetryBaseDelay: aiDefaults.RetryBaseDelay,
		},
	}
}

// AIConfig converts the AI settings into an ai.Config.
func (s *Settings) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(s.AI.EmbeddingHost),
		ai.WithChatHost(s.AI.ChatHost),
		ai.WithEmbeddingModel(s.AI.EmbeddingModel),
		ai.WithChatModel(s.AI.ChatModel),
		ai.WithAPIKey(s.AI.APIKey),
		ai.WithEncoding(s.AI.Encoding),
		ai.WithRetry(s.AI.MaxRetries, s.AI.RetryBaseDelay),
	)
}

// Validate rejects settings no component can run with.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if s.RunsDir == "" {
		return fmt.Errorf("runs_dir is required")
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", s.Workers)
	}
	if s.JudgeWorkers < 1 {
		return fmt.Errorf("judge_workers must be >= 1, got %d", s.JudgeWorkers)
	}
	if s.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return s.AIConfig().Validate()
}

// LoadSettings resolves settings from defaults, the YAML file at path (when
// non-empty and present) and the environment.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		default:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("failed to parse settings file: %w", err)
			}
		}
	}

	if err := setFieldsFromEnv(reflect.ValueOf(s).Elem(), EnvPrefix); err != nil {
		return nil, fmt.Errorf("failed to load settings from env: %w", err)
	}
	return s, nil
}

// setFieldsFromEnv overrides tagged fields from PREFIX_TAG variables,
// recursing into nested structs with PREFIX_TAG as the new prefix.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
