package reel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SymbolWeight struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// Config is the reel tuning table: symbol weights for normal and bonus
// spins, the special (bonus) symbol, and the middle-row paytable.
type Config struct {
	Special   string                   `yaml:"special"`
	FreeSpins int                      `yaml:"free_spins"`
	Normal    []SymbolWeight           `yaml:"normal_weights"`
	Bonus     []SymbolWeight           `yaml:"bonus_weights"`
	Paytable  map[string]map[int]int64 `yaml:"paytable"`
}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("reel config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Special == "" {
		return errors.New("reel config: special symbol required")
	}
	if c.FreeSpins < 1 {
		return errors.New("reel config: free_spins must be positive")
	}
	if len(c.Normal) == 0 || len(c.Bonus) == 0 {
		return errors.New("reel config: weight tables required")
	}
	for _, tbl := range [][]SymbolWeight{c.Normal, c.Bonus} {
		nonSpecial := 0
		for _, sw := range tbl {
			if sw.Weight < 0 {
				return fmt.Errorf("reel config: negative weight for %s", sw.Name)
			}
			if sw.Name != c.Special && sw.Weight > 0 {
				nonSpecial++
			}
		}
		if nonSpecial == 0 {
			return errors.New("reel config: weight table needs non-special symbols")
		}
	}
	return nil
}

// DefaultConfig is the compiled-in tuning used when no yaml file is found.
func DefaultConfig() Config {
	return Config{
		Special:   "orb",
		FreeSpins: 10,
		Normal: []SymbolWeight{
			{Name: "cherry", Weight: 30},
			{Name: "bell", Weight: 25},
			{Name: "clover", Weight: 20},
			{Name: "gem", Weight: 12},
			{Name: "crown", Weight: 8},
			{Name: "orb", Weight: 5},
		},
		Bonus: []SymbolWeight{
			{Name: "cherry", Weight: 18},
			{Name: "bell", Weight: 20},
			{Name: "clover", Weight: 22},
			{Name: "gem", Weight: 20},
			{Name: "crown", Weight: 14},
			{Name: "orb", Weight: 6},
		},
		Paytable: map[string]map[int]int64{
			"cherry": {3: 2, 4: 4, 5: 8},
			"bell":   {3: 3, 4: 6, 5: 12},
			"clover": {3: 4, 4: 8, 5: 16},
			"gem":    {3: 6, 4: 12, 5: 25},
			"crown":  {3: 10, 4: 25, 5: 50},
		},
	}
}
