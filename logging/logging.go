// Package logging builds the slog loggers used across frostguard.
//
// Key shares and nonces are never logged. Code that wants to record that
// a secret was handled logs [Redacted] in its place; handlers built by
// [New] also blank any attribute whose key names a secret.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const placeholder = "[redacted]"

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// secretKeys are attribute keys whose values are always replaced.
var secretKeys = map[string]bool{
	"secret":        true,
	"secret_share":  true,
	"hiding_nonce":  true,
	"binding_nonce": true,
}

// New returns a logger writing to w at level, as text or JSON.
func New(level slog.Level, format string, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}
	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel parses debug, info, warn, or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

// Redacted marks that a secret attribute was deliberately left out.
func Redacted(key string) slog.Attr {
	return slog.String(key, placeholder)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[a.Key] {
		return slog.String(a.Key, placeholder)
	}
	return a
}
