// Package tflite - TFLite Flatbuffer Dekodierung und Kodierung
//
// Dieses Modul enthaelt die Einstiegspunkte:
// - Decode: Liest ein Modell aus einem Flatbuffer
// - Encode: Serialisiert ein Modell in einen neuen Flatbuffer
// - ErrMalformed: Strukturfehler (ungueltiger Index, fehlendes Feld)
package tflite

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	flatbuffers "github.com/google/flatbuffers/go"
)

// FileIdentifier steht an Byte 4..8 jedes TFLite-Modells
const FileIdentifier = "TFL3"

// ErrMalformed meldet ein strukturell ungueltiges Modell
var ErrMalformed = errors.New("malformed model")

// FormatError beschreibt einen Strukturfehler
type FormatError struct {
	Kind error
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Kind }

func malformedf(format string, args ...any) error {
	return &FormatError{Kind: ErrMalformed, Msg: fmt.Sprintf(format, args...)}
}

// Decode liest ein TFLite-Modell aus buf.
// Das Ergebnis teilt keinen Speicher mit buf.
func Decode(buf []byte) (m *Model, err error) {
	if len(buf) < 8 {
		return nil, malformedf("buffer too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[4:8], []byte(FileIdentifier)) {
		return nil, malformedf("file identifier %q, want %q", buf[4:8], FileIdentifier)
	}

	// Der flatbuffers-Runtime prueft keine Grenzen: ein Offset ausserhalb
	// von buf endet in einem Index-Panic.
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(runtime.Error); ok {
				m, err = nil, malformedf("%v", re)
				return
			}
			panic(r)
		}
	}()

	d := decoder{buf: buf}
	m, err = d.model(rootTable(buf))
	if err != nil {
		return nil, err
	}

	slog.Debug("decoded model", "version", m.Version, "subgraphs", len(m.Subgraphs), "buffers", len(m.Buffers), "opcodes", len(m.OperatorCodes))
	return m, nil
}

// Encode serialisiert das Modell in einen neuen Flatbuffer
func (m *Model) Encode() ([]byte, error) {
	e := encoder{b: flatbuffers.NewBuilder(1024)}
	root, err := e.model(m)
	if err != nil {
		return nil, err
	}
	e.b.FinishWithFileIdentifier(root, []byte(FileIdentifier))
	return e.b.FinishedBytes(), nil
}

func rootTable(buf []byte) *flatbuffers.Table {
	return &flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
}
