// Package trace is the compiler core's structured-logging ambient
// stack: a shared slog logger tagged per subsystem so log lines stay
// filterable downstream without each package wiring its own handler.
package trace

import (
	"log/slog"
	"os"
)

// Category tags every log line with its owning subsystem.
type Category string

const (
	Builder  Category = "bytecode.builder"
	Liveness Category = "bytecode.liveness"
	Graph    Category = "hir.graph"
	Pool     Category = "compilepool"
)

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// For returns a logger tagged with the given category.
func For(cat Category) *slog.Logger {
	return base.With("category", string(cat))
}

// SetLevel adjusts the minimum level of the package-wide logger; used by
// cmd/lavac-dump's -v flag.
func SetLevel(lvl slog.Level) {
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
