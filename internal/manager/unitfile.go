package manager

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// UnitFileLoader resolves a unit name to the raw key/value fragment its
// Kind adapter's Parse method consumes. Reading the *.service/*.socket/...
// grammar off disk is the generator-equivalent external collaborator
// spec.md §1 calls out as out of scope for the core runtime; this
// interface is the seam, and DirLoader below is a minimal but real
// implementation rather than leaving it unimplemented.
type UnitFileLoader interface {
	// Load returns the unit's parsed key/value pairs and whether a file
	// was found for it at all. found=false maps to graph.NotFound at the
	// call site; a non-nil err maps to graph.Error.
	Load(name string) (map[string]string, bool, error)
}

// DirLoader reads flattened "Key=Value" unit files (section headers like
// "[Service]" are accepted and skipped rather than namespacing keys,
// since every Kind's Config.Parse already expects a single flat map) from
// the first of Dirs that contains a file named after the unit.
type DirLoader struct {
	Dirs []string
}

func (d DirLoader) Load(name string) (map[string]string, bool, error) {
	for _, dir := range d.Dirs {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, true, err
		}
		defer f.Close()

		raw, err := parseUnitFile(f)
		if err != nil {
			return nil, true, err
		}
		return raw, true, nil
	}
	return nil, false, nil
}

func parseUnitFile(f *os.File) (map[string]string, error) {
	raw := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if existing, ok := raw[key]; ok {
			raw[key] = existing + " " + value
		} else {
			raw[key] = value
		}
	}
	return raw, scanner.Err()
}
