// Package writer persists finished session reports.
package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Factory builds a writer from its definition.
type Factory func(def config.WriterDef, logger *slog.Logger) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]Factory)

// Register registers a new writer type with its factory function.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types in sorted order.
func Types() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Create builds every enabled writer. On error the writers built so far are closed.
func Create(defs []config.WriterDef, logger *slog.Logger) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		logger.Info("creating writer", slog.String("type", def.Type))

		factory, ok := registry[def.Type]
		if !ok {
			CloseAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def, logger)
		if err != nil {
			CloseAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}

// CloseAll closes every writer and joins their errors.
func CloseAll(writers []model.Writer) error {
	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
