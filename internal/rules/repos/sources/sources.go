package sources

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/hydirect/internal/rules/domain"
)

//go:embed builtin.yaml
var builtinTable []byte

// keyDelim separates nested keys; identifiers may contain dots.
const keyDelim = "::"

var (
	ErrEmptyTable        = errors.New("source table has no sources")
	ErrUnsupportedFormat = errors.New("unsupported source table format")
)

// Entry is one row of the source table.
type Entry struct {
	Label      string `koanf:"label"`
	Identifier string `koanf:"identifier" validate:"required"`
	// URL overrides both the locators map and the template for this entry.
	URL string `koanf:"url" validate:"omitempty,http_url"`
}

// Table maps human readable labels to upstream list identifiers.
type Table struct {
	// Template overrides the configured locator template when set.
	Template string            `koanf:"template"`
	Entries  []Entry           `koanf:"sources" validate:"dive"`
	Locators map[string]string `koanf:"locators" validate:"dive,keys,required,endkeys,required,http_url"`
}

// Builtin returns the table compiled into the binary.
func Builtin() (*Table, error) {
	return load(rawbytes.Provider(builtinTable), yaml.Parser())
}

// LoadFile reads a YAML (.yaml, .yml) or JSON (.json) table.
func LoadFile(path string) (*Table, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	t, err := load(file.Provider(path), parser)
	if err != nil {
		return nil, fmt.Errorf("source table %s: %w", path, err)
	}
	return t, nil
}

// Load returns the table at path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Builtin()
	}
	return LoadFile(path)
}

func load(p koanf.Provider, parser koanf.Parser) (*Table, error) {
	k := koanf.New(keyDelim)
	if err := k.Load(p, parser); err != nil {
		return nil, fmt.Errorf("error loading source table: %w", err)
	}
	var t Table
	if err := k.Unmarshal("", &t); err != nil {
		return nil, fmt.Errorf("error unmarshalling source table: %w", err)
	}
	if err := validator.New().Struct(&t); err != nil {
		return nil, fmt.Errorf("source table validation failed: %w", err)
	}
	if len(t.Entries) == 0 && len(t.Locators) == 0 {
		return nil, ErrEmptyTable
	}
	return &t, nil
}

// Sources resolves every entry to a domain.Source, preserving table order.
// Locator precedence: entry URL, then locators[identifier], then the template
// (the table's own, else defaultTemplate). A table without entries yields one
// source per locator, ordered by identifier.
func (t *Table) Sources(defaultTemplate string) ([]domain.Source, error) {
	tmpl := t.Template
	if tmpl == "" {
		tmpl = defaultTemplate
	}

	entries := t.Entries
	if len(entries) == 0 {
		ids := make([]string, 0, len(t.Locators))
		for id := range t.Locators {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			entries = append(entries, Entry{Identifier: id})
		}
	}
	if len(entries) == 0 {
		return nil, ErrEmptyTable
	}

	out := make([]domain.Source, 0, len(entries))
	for i, e := range entries {
		loc, err := t.locator(e, tmpl)
		if err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, e.Identifier, err)
		}
		src, err := domain.NewSource(e.Label, e.Identifier, loc)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func (t *Table) locator(e Entry, tmpl string) (string, error) {
	if e.URL != "" {
		return e.URL, nil
	}
	if u, ok := t.Locators[e.Identifier]; ok {
		return u, nil
	}
	if !strings.Contains(tmpl, domain.NamePlaceholder) {
		return "", fmt.Errorf("no locator and template %q lacks %s", tmpl, domain.NamePlaceholder)
	}
	return domain.ExpandTemplate(tmpl, e.Identifier), nil
}
