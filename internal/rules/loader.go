package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CollectYAMLFiles returns the .yaml and .yml files under path. A file path is
// returned as is.
func CollectYAMLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// LoadFile reads and compiles the rule sets in one YAML file.
func LoadFile(path string) ([]*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sets, err := ParseRuleSets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sets, nil
}

// LoadPaths loads every rule set found under paths.
func LoadPaths(paths []string) ([]*RuleSet, error) {
	var all []*RuleSet
	for _, path := range paths {
		files, err := CollectYAMLFiles(path)
		if err != nil {
			return nil, fmt.Errorf("collect rule files %s: %w", path, err)
		}
		for _, f := range files {
			sets, err := LoadFile(f)
			if err != nil {
				return nil, err
			}
			all = append(all, sets...)
		}
	}
	return all, nil
}
