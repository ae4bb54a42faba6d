package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"findash/internal/core"
)

// DefaultIntervalMin is the check interval used when the watchlist omits it.
const DefaultIntervalMin = 10

var ErrNoWatchlist = errors.New("watchlist not found")

// Watchlist is the monitor's configuration file.
type Watchlist struct {
	IntervalMin int              `json:"interval_min"`
	Stocks      []core.WatchItem `json:"stocks"`
}

// Interval returns the configured check interval.
func (w Watchlist) Interval() time.Duration {
	if w.IntervalMin <= 0 {
		return DefaultIntervalMin * time.Minute
	}
	return time.Duration(w.IntervalMin) * time.Minute
}

// LoadWatchlist reads and validates the watchlist at path. Defaults are
// applied to every stock.
func LoadWatchlist(path string) (Watchlist, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Watchlist{}, fmt.Errorf("%w: %s", ErrNoWatchlist, path)
	}
	if err != nil {
		return Watchlist{}, fmt.Errorf("read watchlist: %w", err)
	}
	var w Watchlist
	if err := json.Unmarshal(data, &w); err != nil {
		return Watchlist{}, fmt.Errorf("parse watchlist %s: %w", path, err)
	}
	if w.IntervalMin <= 0 {
		w.IntervalMin = DefaultIntervalMin
	}
	for i, s := range w.Stocks {
		if err := s.Validate(); err != nil {
			return Watchlist{}, fmt.Errorf("watchlist stock %d (%s): %w", i, s.Code, err)
		}
		w.Stocks[i] = s.WithDefaults()
	}
	return w, nil
}
