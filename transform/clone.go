package transform

import "github.com/mltools/mltools/fs/tflite"

// Clone kopiert ein Modell ohne Aenderung
type Clone struct{}

func (Clone) Name() string { return "clone" }

func (Clone) Apply(m *tflite.Model) (*tflite.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.Clone(), nil
}
