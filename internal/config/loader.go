package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hypeedev/gest/pkg/logger"
)

const envPrefix = "GEST_"

// fragment is the part of an imported file that contributes gestures.
type fragment struct {
	Import              []string            `koanf:"import"`
	Gestures            []GestureConfig     `koanf:"gestures"`
	ApplicationGestures []ApplicationConfig `koanf:"application_gestures"`
}

// Load builds a Config by layering defaults, the YAML file at path and env
// vars. Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) when path is not empty, plus its imports
//  3. env (prefix GEST_, "__" separates nested keys)
//
// Imported files only contribute gestures and application_gestures; their
// tables are appended after the importing file's own.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := New(ctx)
	k := koanf.New(".")

	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
		path = abs
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// GEST_OPTIONS__MOVE_THRESHOLD -> options.move_threshold
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if path != "" {
		cfg.files = []string{path}
		root := fragment{Import: cfg.Import}
		loaded := map[string]bool{path: true}
		if err := cfg.resolveImports(path, root, []string{path}, loaded); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveImports loads the files imported by from, depth first. A file on
// the current import chain is a cycle; a file already loaded through another
// chain is skipped.
func (c *Config) resolveImports(from string, f fragment, chain []string, loaded map[string]bool) error {
	for _, imp := range f.Import {
		p := imp
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(from), p)
		}
		p = filepath.Clean(p)

		if slices.Contains(chain, p) {
			return fmt.Errorf("%w: %s -> %s", ErrImportCycle, strings.Join(chain, " -> "), p)
		}
		if loaded[p] {
			continue
		}
		loaded[p] = true

		sub, err := readFragment(p)
		if err != nil {
			return fmt.Errorf("import %q from %s: %w", imp, from, err)
		}
		c.files = append(c.files, p)
		c.Gestures = append(c.Gestures, sub.Gestures...)
		c.ApplicationGestures = append(c.ApplicationGestures, sub.ApplicationGestures...)

		if err := c.resolveImports(p, sub, append(chain, p), loaded); err != nil {
			return err
		}
	}
	return nil
}

func readFragment(path string) (fragment, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fragment{}, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	var f fragment
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fragment{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return f, nil
}

// Watch calls onChange with the changed path whenever one of files is
// written. Watching stops when ctx is done.
func Watch(ctx context.Context, log logger.Logger, files []string, onChange func(path string)) error {
	if log == nil {
		log = logger.Nop()
	}
	providers := make([]*file.File, 0, len(files))
	stop := func() {
		for _, p := range providers {
			_ = p.Unwatch()
		}
	}

	for _, path := range files {
		p := file.Provider(path)
		err := p.Watch(func(_ interface{}, err error) {
			if err != nil {
				log.Warn(ctx, "config watch stopped", logger.String("file", path), logger.Error(err))
				return
			}
			onChange(path)
		})
		if err != nil {
			stop()
			return fmt.Errorf("%w: %s: %w", ErrWatch, path, err)
		}
		providers = append(providers, p)
	}

	go func() {
		<-ctx.Done()
		stop()
	}()
	return nil
}

// IsNotExist reports whether err stems from a missing configuration file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
