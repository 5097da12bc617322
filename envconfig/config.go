// config.go - Konfiguration aus Environment-Variablen
//
// Dieses Modul enthaelt:
//   - LogLevel: Gibt Log-Level zurueck (MLTOOLS_DEBUG)
//   - StrictOps: Abbruch bei Operatoren ohne Policy (MLTOOLS_STRICT_OPS)
//   - ShapeParamWidth/ShapeParamIndex: Kodierung der Batch-Dimension in
//     shape-Buffern (MLTOOLS_SHAPE_PARAM_WIDTH, MLTOOLS_SHAPE_PARAM_INDEX)
//   - Var: Liest eine Variable
//
// Die Werte sind Defaults, Kommandozeilen-Flags haben Vorrang.
// Utility-Funktionen und AsMap/Values: config_utils.go
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// StrictOps bricht replicate bei Operatoren ohne Policy ab
	StrictOps = Bool("MLTOOLS_STRICT_OPS")

	// ShapeParamWidth ist die Breite eines shape-Elements in Bytes, 0 = aus dem Tensortyp
	ShapeParamWidth = Uint("MLTOOLS_SHAPE_PARAM_WIDTH", 1)

	// ShapeParamIndex ist der Index der Batch-Dimension im shape-Buffer
	ShapeParamIndex = Uint("MLTOOLS_SHAPE_PARAM_INDEX", 0)
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via MLTOOLS_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("MLTOOLS_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
