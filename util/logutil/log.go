// Copyright 2025 Flexstats, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
	// DefaultLogFormat is the default format of the log.
	DefaultLogFormat = "text"
)

// LogConfig serializes log related config.
type LogConfig struct {
	// Level is the log level, one of "debug", "info", "warn", "error", "fatal".
	Level string `toml:"level" json:"level"`
	// Format is the log format, one of "text" or "json".
	Format string `toml:"format" json:"format"`
	// File is the log file path. Empty means logging to stderr.
	File string `toml:"file" json:"file"`
}

// NewLogConfig creates a LogConfig with the given level, using defaults for
// the remaining fields.
func NewLogConfig(level string) *LogConfig {
	return &LogConfig{
		Level:  level,
		Format: DefaultLogFormat,
	}
}

// InitLogger initializes the global logger.
func InitLogger(cfg *LogConfig) error {
	pcfg := &log.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	}
	if cfg.File != "" {
		pcfg.File = log.FileLogConfig{Filename: cfg.File}
	}
	logger, props, err := log.InitLogger(pcfg)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// BgLogger returns the default global logger.
func BgLogger() *zap.Logger {
	return log.L()
}
