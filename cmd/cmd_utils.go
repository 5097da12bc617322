// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: readModel, writeModel
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mltools/mltools/fs/tflite"
)

// readModel - Liest und dekodiert ein Modell
func readModel(path string) (*tflite.Model, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := tflite.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("read model", "path", path, "size", len(buf))
	return m, nil
}

// writeModel - Kodiert m und schreibt es nach path. Die Datei entsteht erst
// nach erfolgreichem Schreiben, bei einem Fehler bleibt path unberuehrt.
func writeModel(path string, m *tflite.Model) error {
	buf, err := m.Encode()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}

	slog.Debug("wrote model", "path", path, "size", len(buf))
	return nil
}
