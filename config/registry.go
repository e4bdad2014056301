package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/svjt78/ragmesh/core"
)

// DefaultProfileID names the built-in profile of every kind.
const DefaultProfileID = "default"

// Profile file names inside the profiles directory.
const (
	RetrievalFile = "retrieval.yaml"
	FusionFile    = "fusion.yaml"
	ContextFile   = "context.yaml"
	JudgeFile     = "judge.yaml"
	ChatFile      = "chat.yaml"
	ChunkingFile  = "chunking.yaml"
	WorkflowsFile = "workflows.yaml"
)

// ProfileIDs selects one profile of each kind. Empty ids select the default.
type ProfileIDs struct {
	Workflow  string `json:"workflow_id"`
	Retrieval string `json:"retrieval_profile_id"`
	Fusion    string `json:"fusion_profile_id"`
	Context   string `json:"context_profile_id"`
	Judge     string `json:"judge_profile_id"`
	Chat      string `json:"chat_profile_id,omitempty"`
}

// Registry holds the named profiles available to runs. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	retrieval map[string]core.RetrievalProfile
	fusion    map[string]core.FusionProfile
	context   map[string]core.ContextProfile
	judge     map[string]core.JudgeProfile
	chat      map[string]core.ChatProfile
	chunking  map[string]core.ChunkingProfile
	workflows map[string]core.WorkflowProfile
	logger    *slog.Logger
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	quick := core.DefaultWorkflowProfile()
	quick.WorkflowID = "quick"
	quick.Description = "Retrieval and generation without graph or judge"
	quick.Steps = []string{"retrieval", "fusion", "context_compilation", "generation"}
	quick.EnableGraphRetrieval = false

	return &Registry{
		retrieval: map[string]core.RetrievalProfile{DefaultProfileID: core.DefaultRetrievalProfile()},
		fusion:    map[string]core.FusionProfile{DefaultProfileID: core.DefaultFusionProfile()},
		context:   map[string]core.ContextProfile{DefaultProfileID: core.DefaultContextProfile()},
		judge:     map[string]core.JudgeProfile{DefaultProfileID: core.DefaultJudgeProfile()},
		chat:      map[string]core.ChatProfile{DefaultProfileID: core.DefaultChatProfile()},
		chunking:  map[string]core.ChunkingProfile{DefaultProfileID: core.DefaultChunkingProfile()},
		workflows: map[string]core.WorkflowProfile{
			DefaultProfileID: core.DefaultWorkflowProfile(),
			quick.WorkflowID: quick,
		},
		logger: logger.With("component", "profile-registry"),
	}
}

// LoadDir reads every known profile file in dir. A missing directory or
// file is skipped. Loaded profiles are validated and replace built-ins with
// the same id.
func (r *Registry) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("profiles directory not found", "dir", dir)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := loadFile(dir, RetrievalFile, r.retrieval, core.DefaultRetrievalProfile, func(id string, named bool, p *core.RetrievalProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateRetrievalProfile(*p)
	}); err != nil {
		return err
	}
	if err := loadFile(dir, FusionFile, r.fusion, core.DefaultFusionProfile, func(id string, named bool, p *core.FusionProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateFusionProfile(*p)
	}); err != nil {
		return err
	}
	if err := loadFile(dir, ContextFile, r.context, core.DefaultContextProfile, func(id string, named bool, p *core.ContextProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateContextProfile(*p)
	}); err != nil {
		return err
	}
	if err := loadFile(dir, JudgeFile, r.judge, core.DefaultJudgeProfile, func(id string, named bool, p *core.JudgeProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateJudgeProfile(*p)
	}); err != nil {
		return err
	}
	if err := loadFile(dir, ChatFile, r.chat, core.DefaultChatProfile, func(id string, named bool, p *core.ChatProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateChatProfile(*p)
	}); err != nil {
		return err
	}
	if err := loadFile(dir, ChunkingFile, r.chunking, core.DefaultChunkingProfile, func(id string, named bool, p *core.ChunkingProfile) error {
		if !named {
			p.Name = id
		}
		return core.ValidateChunkingProfile(*p)
	}); err != nil {
		return err
	}
	return loadFile(dir, WorkflowsFile, r.workflows, core.DefaultWorkflowProfile, func(id string, named bool, p *core.WorkflowProfile) error {
		p.WorkflowID = id
		return core.ValidateWorkflowProfile(*p)
	})
}

// loadFile decodes one profile file into dst. Each body is decoded over a
// fresh default so omitted fields keep their default values. prepare learns
// whether the body set a name itself; otherwise the profile takes its id.
func loadFile[T any](dir, name string, dst map[string]T, defaults func() T, prepare func(id string, named bool, p *T) error) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrValidation, path, err)
	}
	for id, node := range nodes {
		p := defaults()
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("%w: %s profile %q: %w", core.ErrValidation, name, id, err)
		}
		if err := prepare(id, hasKey(&node, "name"), &p); err != nil {
			return fmt.Errorf("%w: %s profile %q: %w", core.ErrValidation, name, id, err)
		}
		dst[id] = p
	}
	return nil
}

// hasKey reports whether a mapping node sets key.
func hasKey(node *yaml.Node, key string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

func lookup[T any](mu *sync.RWMutex, profiles map[string]T, kind, id string) (T, error) {
	if id == "" {
		id = DefaultProfileID
	}
	mu.RLock()
	defer mu.RUnlock()
	p, ok := profiles[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unknown %s profile %q", core.ErrValidation, kind, id)
	}
	return p, nil
}

// Retrieval returns the retrieval profile with id.
func (r *Registry) Retrieval(id string) (core.RetrievalProfile, error) {
	return lookup(&r.mu, r.retrieval, "retrieval", id)
}

// Fusion returns the fusion profile with id.
func (r *Registry) Fusion(id string) (core.FusionProfile, error) {
	return lookup(&r.mu, r.fusion, "fusion", id)
}

// Context returns the context profile with id.
func (r *Registry) Context(id string) (core.ContextProfile, error) {
	return lookup(&r.mu, r.context, "context", id)
}

// Judge returns the judge profile with id.
func (r *Registry) Judge(id string) (core.JudgeProfile, error) {
	return lookup(&r.mu, r.judge, "judge", id)
}

// Chat returns the chat profile with id.
func (r *Registry) Chat(id string) (core.ChatProfile, error) {
	return lookup(&r.mu, r.chat, "chat", id)
}

// Chunking returns the chunking profile with id.
func (r *Registry) Chunking(id string) (core.ChunkingProfile, error) {
	return lookup(&r.mu, r.chunking, "chunking", id)
}

// Workflow returns the workflow with id. The step list is a copy.
func (r *Registry) Workflow(id string) (core.WorkflowProfile, error) {
	w, err := lookup(&r.mu, r.workflows, "workflow", id)
	if err != nil {
		return w, err
	}
	w.Steps = slices.Clone(w.Steps)
	return w, nil
}

// Resolve looks up every profile in ids. The chat profile is resolved only
// when withChat is set.
func (r *Registry) Resolve(ids ProfileIDs, withChat bool) (*core.ProfileSet, error) {
	workflow, err := r.Workflow(ids.Workflow)
	if err != nil {
		return nil, err
	}
	retrieval, err := r.Retrieval(ids.Retrieval)
	if err != nil {
		return nil, err
	}
	fusion, err := r.Fusion(ids.Fusion)
	if err != nil {
		return nil, err
	}
	context, err := r.Context(ids.Context)
	if err != nil {
		return nil, err
	}
	judge, err := r.Judge(ids.Judge)
	if err != nil {
		return nil, err
	}
	set := &core.ProfileSet{
		Workflow:  workflow,
		Retrieval: retrieval,
		Fusion:    fusion,
		Context:   context,
		Judge:     judge,
	}
	if withChat {
		chat, err := r.Chat(ids.Chat)
		if err != nil {
			return nil, err
		}
		set.Chat = &chat
	}
	return set, nil
}

// IDs lists the profile ids of every kind, sorted.
func (r *Registry) IDs() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"retrieval": sortedKeys(r.retrieval),
		"fusion":    sortedKeys(r.fusion),
		"context":   sortedKeys(r.context),
		"judge":     sortedKeys(r.judge),
		"chat":      sortedKeys(r.chat),
		"chunking":  sortedKeys(r.chunking),
		"workflow":  sortedKeys(r.workflows),
	}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
