// Package config reads and validates the JSON configuration that drives a
// patch run: the target executable, the dylibs to make available to it, and
// the symbol hooks to rebind into them.
package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Dylib describes one hook library: a logical name used to cross-reference
// it from Hook.DylibName, its on-disk path, and the install name it should
// be embedded under in the target's LC_LOAD_DYLIB command.
type Dylib struct {
	Name        string `json:"name" validate:"required"`
	Path        string `json:"path" validate:"required"`
	InstallName string `json:"install_name" validate:"required"`
}

// Hook describes one symbol to rebind: an exact imported symbol string and
// the logical name of the dylib (see Dylib.Name) that should provide it.
type Hook struct {
	Symbol    string `json:"symbol" validate:"required"`
	DylibName string `json:"dylib_name" validate:"required"`
}

// Config is the validated, parsed form of a run's JSON configuration file.
type Config struct {
	Target string  `json:"target" validate:"required"`
	Dylibs []Dylib `json:"dylibs" validate:"dive"`
	Hooks  []Hook  `json:"hooks" validate:"dive"`
}

type fileFormat struct {
	Config Config `json:"config"`
}

// DylibByName returns the Dylib with the given logical name.
func (c Config) DylibByName(name string) (Dylib, bool) {
	for _, d := range c.Dylibs {
		if d.Name == name {
			return d, true
		}
	}
	return Dylib{}, false
}

var v = validator.New()

// Read loads and validates the configuration file at path.
func Read(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config file")
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return Config{}, errors.Wrap(err, "parsing config file")
	}
	cfg := ff.Config

	if err := v.Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "validating config")
	}

	if err := verify(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// verify enforces the rules the struct tags above can't express: filesystem
// existence, the @rpath/@loader_path/@executable_path install-name rules,
// and that every hook resolves to a configured dylib.
func verify(cfg Config) error {
	if _, err := os.Stat(cfg.Target); err != nil {
		return errors.Wrap(err, "target does not exist")
	}

	for _, d := range cfg.Dylibs {
		if _, err := os.Stat(d.Path); err != nil {
			return errors.Wrapf(err, "dylib %q: path does not exist", d.Name)
		}
		if strings.Contains(d.InstallName, "@rpath") {
			return errors.Errorf("dylib %q: install_name must not contain @rpath (ambiguous path)", d.Name)
		}
		if strings.Contains(d.InstallName, "@loader_path") {
			return errors.Errorf("dylib %q: install_name must not contain @loader_path (ambiguous path)", d.Name)
		}
		if i := strings.Index(d.InstallName, "@executable_path"); i > 0 {
			return errors.Errorf("dylib %q: @executable_path may only appear at the start of install_name", d.Name)
		}
	}

	for _, h := range cfg.Hooks {
		if _, ok := cfg.DylibByName(h.DylibName); !ok {
			return errors.Errorf("hook %q: dylib_name %q matches no configured dylib", h.Symbol, h.DylibName)
		}
	}

	return nil
}
