package logwriter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// whitelistLoader loads and caches the set of point names a family is
// allowed to emit to its NDJSON logs, trying logPoints.<family>.json before
// falling back to the shared logPoints.json.
type whitelistLoader struct {
	configDir string

	mu    sync.Mutex
	cache map[string]map[string]struct{}
}

func newWhitelistLoader(configDir string) *whitelistLoader {
	return &whitelistLoader{configDir: configDir, cache: make(map[string]map[string]struct{})}
}

func (l *whitelistLoader) forFamily(family string) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if set, ok := l.cache[family]; ok {
		return set, nil
	}

	perFamily := filepath.Join(l.configDir, fmt.Sprintf("logPoints.%s.json", family))
	raw, err := os.ReadFile(perFamily)
	if os.IsNotExist(err) {
		raw, err = os.ReadFile(filepath.Join(l.configDir, "logPoints.json"))
	}
	if err != nil {
		return nil, fmt.Errorf("logwriter: no whitelist found for family %q: %w", family, err)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("logwriter: invalid whitelist json: %w", err)
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	l.cache[family] = set
	return set, nil
}
