package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const descriptorExt = ".json"

// LoadFile parses one descriptor file. The contract is named after the
// file stem.
func LoadFile(path string) (*ContractInterface, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(name, raw)
}

// LoadDir parses every *.json file in dir, ordered by contract name.
func LoadDir(dir string) ([]*ContractInterface, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), descriptorExt) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	out := make([]*ContractInterface, 0, len(files))
	for _, name := range files {
		ci, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, nil
}
