/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout)
}

// SetupWithWriter configures zerolog to write to out. Production writes JSON
// lines; every other environment gets the human readable console writer at
// debug level.
func SetupWithWriter(environment string, out io.Writer) zerolog.Logger {
	return SetupWithCapture(environment, out, nil)
}

// SetupWithCapture is SetupWithWriter plus a capture writer that always
// receives the raw JSON lines, e.g. the diagnostics log buffer.
func SetupWithCapture(environment string, out, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	writer := out
	switch strings.ToLower(environment) {
	case "production":
	case "development":
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	default:
		writer = zerolog.ConsoleWriter{Out: out}
	}

	if capture != nil {
		writer = zerolog.MultiLevelWriter(writer, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "showrunner").Logger().Level(level)
	log.Logger = logger
	return logger
}
