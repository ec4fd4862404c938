package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Watchlist defines what the run searches each registry for.
type Watchlist struct {
	Terms      []string `yaml:"terms"`
	Conditions []string `yaml:"conditions"`
}

// DefaultWatchlist returns the built-in search set used when no watchlist
// file is configured.
func DefaultWatchlist() Watchlist {
	return Watchlist{
		Conditions: []string{"spinal cord injury"},
	}
}

// LoadWatchlist reads a watchlist YAML file. An empty path yields the
// default watchlist.
func LoadWatchlist(path string) (Watchlist, error) {
	if path == "" {
		return DefaultWatchlist(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Watchlist{}, eris.Wrapf(err, "watchlist: read %s", path)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return Watchlist{}, eris.Wrapf(err, "watchlist: parse %s", path)
	}
	if len(wl.Terms) == 0 && len(wl.Conditions) == 0 {
		return Watchlist{}, eris.Errorf("watchlist: %s defines no terms or conditions", path)
	}
	return wl, nil
}

// Query renders the watchlist as a registry search expression.
func (w Watchlist) Query() string {
	return buildQuery(w.Terms, w.Conditions)
}
