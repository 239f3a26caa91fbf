package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigSource supplies configuration. Load is called at the start of every
// operation so edits take effect on the next call.
type ConfigSource interface {
	Load() (Config, error)
	// SetValue persists a top-level string key such as "model".
	SetValue(key, value string) error
}

// FileSource reads a YAML or TOML file on every Load. A missing file yields
// DefaultConfig.
type FileSource struct {
	Path string

	mu sync.Mutex
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and parses the file.
func (s *FileSource) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}

	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return parseConfig(s.Path, data)
}

// SetValue rewrites key in the file, creating the file when needed. YAML
// files keep their comments and ${VAR} references.
func (s *FileSource) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("engine: set %s: %w", key, err)
	}

	var out []byte
	if isTOML(s.Path) {
		out, err = setTOMLValue(data, key, value)
	} else {
		out, err = setYAMLValue(data, key, value)
	}

	if err != nil {
		return fmt.Errorf("engine: set %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("engine: set %s: %w", key, err)
	}

	mode := os.FileMode(0o600)
	if info, err := os.Stat(s.Path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(s.Path, out, mode); err != nil {
		return fmt.Errorf("engine: set %s: %w", key, err)
	}

	return nil
}

// Init writes DefaultConfig to the file in its format. It fails if the file
// already exists.
func (s *FileSource) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		buf bytes.Buffer
		err error
	)

	if isTOML(s.Path) {
		err = toml.NewEncoder(&buf).Encode(DefaultConfig())
	} else {
		err = yaml.NewEncoder(&buf).Encode(DefaultConfig())
	}

	if err != nil {
		return fmt.Errorf("engine: init config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("engine: init config: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("engine: init config: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("engine: init config: %w", err)
	}

	return f.Close()
}

// SetModel persists model as the configured model. It makes FileSource a
// reconcile.ModelStore.
func (s *FileSource) SetModel(model string) error {
	return s.SetValue("model", model)
}

func setYAMLValue(data []byte, key, value string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level is not a mapping")
	}

	found := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			v := root.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = "!!str"
			v.Style = 0
			v.Value = value
			v.Content = nil
			found = true

			break
		}
	}

	if !found {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func setTOMLValue(data []byte, key, value string) ([]byte, error) {
	m := map[string]any{}
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, err
	}

	m[key] = value

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// MemorySource holds configuration in memory. It backs tests and embedders
// that manage settings themselves.
type MemorySource struct {
	mu  sync.Mutex
	cfg Config
}

// NewMemorySource creates a MemorySource holding cfg.
func NewMemorySource(cfg Config) *MemorySource {
	return &MemorySource{cfg: cfg}
}

// Load returns a copy of the current configuration.
func (s *MemorySource) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.Stop = append([]string(nil), s.cfg.Stop...)
	cfg.Headers = maps.Clone(s.cfg.Headers)
	cfg.Reconcile.InstallCommands = append([]string(nil), s.cfg.Reconcile.InstallCommands...)

	return cfg, nil
}

// Update replaces the configuration through fn.
func (s *MemorySource) Update(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cfg)
}

// SetValue supports the string keys a running engine writes back.
func (s *MemorySource) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "model":
		s.cfg.Model = value
	case "chat_model":
		s.cfg.ChatModel = value
	case "base_url":
		s.cfg.BaseURL = value
	case "endpoint":
		s.cfg.Endpoint = value
	default:
		return fmt.Errorf("engine: set %s: unsupported key", key)
	}

	return nil
}
