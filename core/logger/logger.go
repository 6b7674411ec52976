package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/tempmailbot/core/buildinfo"
	coreconfig "github.com/m3rciful/tempmailbot/core/config"
)

var (
	initOnce     sync.Once
	shutdownOnce sync.Once

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar      slog.LevelVar
	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs; every helper in
	// this package tolerates that so packages can be tested without setup.
	L *slog.Logger
)

// InitLogger configures the global structured logger. It may be called only once.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := settingsFrom(cfg)

		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		outputs, closers, err := openSinks(lc)
		if err != nil {
			initErr = fmt.Errorf("logger: open sinks: %w", err)
			return
		}
		logClosers = closers

		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = s.trace
		logWriter = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)

		startup := []slog.Attr{
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		}
		if cfg != nil {
			startup = append(startup,
				slog.String("mode", cfg.Telegram.RunMode),
				slog.Bool("journal", cfg.Journal.Enabled()),
			)
		}
		Info(context.Background(), "app", "startup", startup...)
	})
	return initErr
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	var err error
	shutdownOnce.Do(func() {
		var errs []error
		if logWriter != nil {
			errs = append(errs, logWriter.Flush(), logWriter.Close())
		}
		for _, c := range logClosers {
			errs = append(errs, c.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent writes a record with the event attribute placed first. A nil
// logg falls back to L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

func event(ctx context.Context, component string, level slog.Level, name string, attrs []slog.Attr) {
	if L == nil {
		return
	}
	logg := L
	if c := strings.TrimSpace(component); c != "" {
		logg = L.With("component", c)
	}
	LogEvent(ctx, logg, level, name, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelDebug, name, attrs)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelInfo, name, attrs)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelWarn, name, attrs)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelError, name, attrs)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 lets every line through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
