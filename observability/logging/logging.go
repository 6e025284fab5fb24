package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the standard library logger to emit structured JSON and
// returns the underlying slog.Logger for richer logging within the provider.
// All log lines include the component name and chain identity when provided.
func Setup(component, chainID string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("component", strings.TrimSpace(component)),
	}
	if chainID = strings.TrimSpace(chainID); chainID != "" {
		attrs = append(attrs, slog.String("chain", chainID))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// Truncated returns a slog.Attr carrying at most the first four bytes of a
// hex-encoded value. Signatures and message payloads never appear in logs in
// full.
func Truncated(key, hexValue string) slog.Attr {
	const keep = 2 + 8 // "0x" plus four bytes
	if len(hexValue) <= keep {
		return slog.String(key, hexValue)
	}
	return slog.String(key, hexValue[:keep]+"...")
}
