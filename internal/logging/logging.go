// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process-wide zap logger, replacing the
// teacher's bare log.Println (server/log.go's AppendLog) with structured,
// leveled logging.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger writing to stdout and, if filePath is non-empty,
// also to that file — the two-sink split server/log.go used for its own
// rotated text log, rebuilt on zapcore.NewTee instead of hand-rolled file
// rotation.
func New(level, filePath string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: parsing level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		lvl,
	)

	if filePath == "" {
		return zap.New(consoleCore, zap.AddCaller()), nil
	}

	sink, _, err := zap.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("logging: opening log file %q: %w", filePath, err)
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, lvl)

	return zap.New(zapcore.NewTee(consoleCore, fileCore), zap.AddCaller()), nil
}
