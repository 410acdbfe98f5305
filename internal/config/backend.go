package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ConfigBackend abstracts persistent config storage. Keys are dotted paths
// such as "llm.model".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetFloat(key string) (val float64, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	Set(key string, val any) error
	Delete(key string) error
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "chunkdim-data"
		}
	}
	return filepath.Join(dir, "chunkdim")
}

// FilePath returns the location of the TOML config file.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "chunkdim", "config.toml")
}

// tomlBackend stores config as TOML tables, one table per key prefix.
type tomlBackend struct {
	path string
	data map[string]any
}

func newTOMLBackend(path string) (*tomlBackend, error) {
	b := &tomlBackend{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &b.data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return b, nil
}

func (b *tomlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(b.data)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

// lookup walks the tables of a dotted key.
func (b *tomlBackend) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	cur := b.data
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func (b *tomlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return fmt.Sprintf("%v", v), true, nil
}

func (b *tomlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		return int(val), true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *tomlBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		return val, true, nil
	case int64:
		return float64(val), true, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, true, fmt.Errorf("invalid float for %s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *tomlBackend) GetBool(key string) (bool, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return false, false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, true, nil
	case string:
		bv, err := strconv.ParseBool(val)
		if err != nil {
			return false, true, fmt.Errorf("invalid bool for %s: %w", key, err)
		}
		return bv, true, nil
	default:
		return false, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *tomlBackend) Set(key string, val any) error {
	parts := strings.Split(key, ".")
	cur := b.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
	return b.save()
}

func (b *tomlBackend) Delete(key string) error {
	parts := strings.Split(key, ".")
	cur := b.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
	return b.save()
}
