package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datafold/datafold/pkg/types"
)

// LoadDirectories reads schema definitions from each directory in dirs, in
// order, and registers each with m. Later directories take precedence over
// earlier ones for a schema of the same name (spec.md §4.E:
// available_schemas/ over data/schemas/, so callers should pass
// data/schemas/ first and available_schemas/ last). Both .json and
// .yaml/.yml files are accepted; a missing directory is skipped, not an
// error.
func LoadDirectories(m *Manager, dirs ...string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return types.WrapError(types.ErrStorage, err, "failed to read schema directory %s", dir)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext != ".json" && ext != ".yaml" && ext != ".yml" {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return types.WrapError(types.ErrStorage, err, "failed to read schema file %s", path)
			}

			var s types.Schema
			if ext == ".json" {
				err = json.Unmarshal(data, &s)
			} else {
				err = yaml.Unmarshal(data, &s)
			}
			if err != nil {
				return types.WrapError(types.ErrSerialization, err, "failed to parse schema file %s", path)
			}
			if s.Name == "" {
				s.Name = strings.TrimSuffix(entry.Name(), ext)
			}

			if err := m.Register(s); err != nil {
				return err
			}
		}
	}
	return nil
}
