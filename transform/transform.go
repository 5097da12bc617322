// Package transform - Graph-Transformationen auf TFLite-Modellen
//
// Dieses Modul enthaelt:
// - Pass: gemeinsame Schnittstelle aller Transformationen
// - Run: fuehrt mehrere Passes nacheinander aus
//
// Jeder Pass baut ein neues Modell und veraendert seine Eingabe nicht.
package transform

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mltools/mltools/fs/tflite"
)

// Pass ist eine Transformation von Modell zu Modell
type Pass interface {
	Name() string
	Apply(m *tflite.Model) (*tflite.Model, error)
}

// Run wendet passes in Reihenfolge auf m an
func Run(m *tflite.Model, passes ...Pass) (*tflite.Model, error) {
	for _, p := range passes {
		start := time.Now()
		out, err := p.Apply(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		slog.Debug("pass finished", "pass", p.Name(), "subgraphs", len(out.Subgraphs), "buffers", len(out.Buffers), "duration", time.Since(start))
		m = out
	}
	return m, nil
}
