// Command lid identifies the languages spoken in audio and video documents.
//
// Usage:
//
//	lid [flags] <command> [args]
//
// Commands:
//
//	annotate - Annotate an MMIF file with TimeFrame language labels
//	file     - Annotate media files and print the labels
//	serve    - Run the HTTP service
//	metadata - Print the app metadata
//
// Configuration is read from the environment, then from the optional
// --config file, then from flags. Later sources win.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

func slogReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if source.File == "" {
			// Log from a dependency (e.g. the speech SDK).
			if pc, file, line, ok := runtime.Caller(7); ok {
				if f := runtime.FuncForPC(pc); f != nil {
					source.File = filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file)
					source.Line = line
				}
			}
		} else {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// setupLogger installs the default logger. Logs go to stderr since stdout
// may carry the annotated output.
func setupLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   true,
		Level:       parseLevel(level),
		ReplaceAttr: slogReplaceAttr,
	}))
	slog.SetDefault(logger)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
