// Package logging provides structured, rotating file logging for skillmind.
//
// All core packages (pattern, router, swarm) accept an injected *slog.Logger
// rather than reading a process-wide default; this package is how the
// CLI/daemon entry points construct that logger and wire it into
// slog.SetDefault for the ambient code that still calls slog.Info/Warn/Error
// directly (store migrations, collaborator adapters).
package logging
