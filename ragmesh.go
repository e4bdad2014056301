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


// Package ragmesh wires the question answering system together: storage,
// the AI provider, profiles and every pipeline component.
package ragmesh

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/ai/openai"
	"github.com/svjt78/ragmesh/chat"
	"github.com/svjt78/ragmesh/compiler"
	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/fusion"
	"github.com/svjt78/ragmesh/generation"
	"github.com/svjt78/ragmesh/ingestion"
	"github.com/svjt78/ragmesh/judge"
	"github.com/svjt78/ragmesh/orchestrator"
	"github.com/svjt78/ragmesh/reembed"
	"github.com/svjt78/ragmesh/retrieval"
	"github.com/svjt78/ragmesh/storage"
	"github.com/svjt78/ragmesh/storage/badger"
	"github.com/svjt78/ragmesh/storage/runfs"
)

// System owns every long-lived component. It is the single context object
// passed to callers; nothing in the module is a process-wide singleton.
type System struct {
	settings     *config.Settings
	stores       *badger.Stores
	runs         *runfs.Store
	provider     ai.Provider
	registry     *config.Registry
	judge        *judge.Engine
	chat         *chat.Manager
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// Option configures a System.
type Option func(*systemOptions)

type systemOptions struct {
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the settings.
// The System takes ownership and closes it.
func WithProvider(provider ai.Provider) Option {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps the document, vector, keyword and graph stores
// in memory. Runs are still written to the runs directory.
func WithInMemoryStorage() Option {
	return func(o *systemOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

// Open builds a System from settings. A nil settings uses the defaults.
func Open(settings *config.Settings, opts ...Option) (*System, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	s := &System{settings: settings, logger: options.logger}
	if err := s.open(options); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Error("error closing partially opened system", "err", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *System) open(options *systemOptions) error {
	var err error
	if options.inMemory {
		s.stores, err = badger.NewMemoryStores()
	} else {
		s.stores, err = badger.OpenStores(s.settings.DataDir)
	}
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	s.runs, err = runfs.New(s.settings.RunsDir, runfs.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}

	s.provider = options.provider
	if s.provider == nil {
		s.provider, err = openai.NewProvider(s.settings.AIConfig())
		if err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
	}

	s.registry = config.NewRegistry(s.logger)
	if err := s.registry.LoadDir(s.settings.ProfilesDir); err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}

	llm := s.provider.LLM()
	tokenizer := s.provider.Tokenizer()

	retriever, err := retrieval.NewRetriever(s.stores.Documents, s.stores.Vectors, s.stores.Keywords, s.stores.Graph, s.provider, retrieval.WithLogger(s.logger))
	if err != nil {
		return err
	}
	fuser, err := fusion.NewEngine(fusion.WithLogger(s.logger))
	if err != nil {
		return err
	}
	reranker, err := fusion.NewReranker(llm, s.logger)
	if err != nil {
		return err
	}
	comp, err := compiler.NewCompiler(s.stores.Documents, tokenizer, compiler.WithLogger(s.logger))
	if err != nil {
		return err
	}
	gen, err := generation.NewGenerator(llm, generation.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.judge, err = judge.NewEngine(llm, judge.WithLogger(s.logger), judge.WithPoolSize(s.settings.JudgeWorkers))
	if err != nil {
		return err
	}
	s.chat, err = chat.NewManager(llm, tokenizer, chat.WithLogger(s.logger), chat.WithTTL(s.settings.SessionTTL))
	if err != nil {
		return err
	}

	s.orchestrator, err = orchestrator.New(orchestrator.Components{
		Registry:  s.registry,
		Runs:      s.runs,
		Retriever: retriever,
		Fusion:    fuser,
		Reranker:  reranker,
		Compiler:  comp,
		Generator: gen,
		Judge:     s.judge,
		Chat:      s.chat,
		Tokenizer: tokenizer,
	}, orchestrator.WithLogger(s.logger))
	return err
}

// Close releases the judge pool, the AI provider and the storage backend.
func (s *System) Close() error {
	var errs []error
	if s.judge != nil {
		s.judge.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.stores != nil {
		if err := s.stores.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Orchestrator executes and inspects runs.
func (s *System) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// Registry holds the available profiles.
func (s *System) Registry() *config.Registry {
	return s.registry
}

// Chat manages conversation sessions.
func (s *System) Chat() *chat.Manager {
	return s.chat
}

// Documents is the document and chunk store.
func (s *System) Documents() storage.DocumentStore {
	return s.stores.Documents
}

// Provider is the AI provider in use.
func (s *System) Provider() ai.Provider {
	return s.provider
}

// NewIngestionPipeline creates a pipeline over the system's stores that
// chunks pages with the registry's default chunking profile. The caller
// must Release it.
func (s *System) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	chunking, err := s.registry.Chunking(config.DefaultProfileID)
	if err != nil {
		return nil, err
	}
	opts = append([]ingestion.Option{
		ingestion.WithPoolSize(s.settings.Workers),
		ingestion.WithLogger(s.logger),
		ingestion.WithChunking(chunking),
	}, opts...)
	return ingestion.NewPipeline(s.stores.Documents, s.stores.Vectors, s.stores.Keywords, s.stores.Graph, s.provider, opts...)
}

// NewReembedder creates a reembedder over the system's stores.
func (s *System) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(s.stores.Documents, s.stores.Vectors, s.provider.Embedder(), cfg, progress)
}
