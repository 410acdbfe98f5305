package templates

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/storage"
)

// Spec describes a template before it is stored.
type Spec struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Prompt     string   `yaml:"prompt"`
	ChunkTypes []string `yaml:"chunk_types,omitempty"`
	Version    int      `yaml:"version,omitempty"`
	Inactive   bool     `yaml:"inactive,omitempty"`
	Notes      string   `yaml:"notes,omitempty"`
}

type file struct {
	Templates []Spec `yaml:"templates"`
}

// Store is the template persistence used for seeding.
type Store interface {
	ListTemplates() ([]storage.PromptTemplate, error)
	CreateTemplate(t storage.PromptTemplate) error
}

// Validate checks the template type, the prompt and the chunk types.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if !slices.Contains(generation.TemplateTypes, s.Type) {
		return fmt.Errorf("template %q: unknown type %q", s.Name, s.Type)
	}
	if !strings.Contains(s.Prompt, "{chunk_text}") {
		return fmt.Errorf("template %q: prompt must contain {chunk_text}", s.Name)
	}
	for _, ct := range s.ChunkTypes {
		if !dimension.ChunkType(ct).Valid() {
			return fmt.Errorf("template %q: unknown chunk type %q", s.Name, ct)
		}
	}
	if s.Version < 0 {
		return fmt.Errorf("template %q: negative version", s.Name)
	}
	return nil
}

func (s Spec) version() int {
	if s.Version == 0 {
		return 1
	}
	return s.Version
}

func (s Spec) toTemplate() storage.PromptTemplate {
	var applicable []string
	if len(s.ChunkTypes) > 0 {
		applicable = slices.Clone(s.ChunkTypes)
	}
	return storage.PromptTemplate{
		ID:                   uuid.NewString(),
		Name:                 s.Name,
		TemplateType:         s.Type,
		PromptText:           s.Prompt,
		ApplicableChunkTypes: applicable,
		Version:              s.version(),
		IsActive:             !s.Inactive,
		Notes:                s.Notes,
	}
}

// Parse decodes a YAML document with a top-level "templates" list and
// validates every entry.
func Parse(data []byte) ([]Spec, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("parsing templates: no templates defined")
	}
	for _, s := range f.Templates {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Templates, nil
}

// LoadFile reads and parses a YAML template file.
func LoadFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Seed stores every spec whose name and version are not stored yet and
// returns the number created.
func Seed(store Store, specs []Spec, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	existing, err := store.ListTemplates()
	if err != nil {
		return 0, fmt.Errorf("listing templates: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[key(t.Name, t.Version)] = true
	}

	created := 0
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return created, err
		}
		k := key(s.Name, s.version())
		if have[k] {
			logger.Debug("template already present", "name", s.Name, "version", s.version())
			continue
		}
		if err := store.CreateTemplate(s.toTemplate()); err != nil {
			return created, fmt.Errorf("creating template %q: %w", s.Name, err)
		}
		have[k] = true
		created++
		logger.Info("template created", "name", s.Name, "type", s.Type, "version", s.version())
	}
	return created, nil
}

func key(name string, version int) string {
	return fmt.Sprintf("%s@%d", name, version)
}
