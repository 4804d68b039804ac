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

package config

import (
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"github.com/flexstats/jsonflex/util/logutil"
)

// Config contains configuration options.
type Config struct {
	Log         logutil.LogConfig `toml:"log" json:"log"`
	Selectivity Selectivity       `toml:"selectivity" json:"selectivity"`
}

// Selectivity holds the heuristic factors used when a histogram cannot answer
// a predicate precisely. Estimates for histograms without sub-histogram data
// and for unknown paths are defined in terms of them.
type Selectivity struct {
	// UnknownEqualFactor scales min-frequency for equality predicates on paths
	// that have no bucket.
	UnknownEqualFactor float64 `toml:"unknown-equal-factor" json:"unknown-equal-factor"`
	// UnknownRangeFactor scales min-frequency for range predicates on paths
	// that have no bucket.
	UnknownRangeFactor float64 `toml:"unknown-range-factor" json:"unknown-range-factor"`
	// NotNullFactor scales min-frequency for IS NOT NULL on paths that have no bucket.
	NotNullFactor float64 `toml:"not-null-factor" json:"not-null-factor"`
	// NullFactor scales min-frequency for IS NULL on paths that have no bucket.
	NullFactor float64 `toml:"null-factor" json:"null-factor"`
	// DefaultEqualFraction is the fraction of a bucket estimated to match an
	// equality predicate when neither NDV nor a sub-histogram is available.
	DefaultEqualFraction float64 `toml:"default-equal-fraction" json:"default-equal-fraction"`
	// DefaultRangeFraction is the fraction of a bucket estimated to match a
	// range predicate when no sub-histogram is available.
	DefaultRangeFraction float64 `toml:"default-range-fraction" json:"default-range-fraction"`
}

var defaultConf = Config{
	Log: logutil.LogConfig{
		Level:  logutil.DefaultLogLevel,
		Format: logutil.DefaultLogFormat,
	},
	Selectivity: Selectivity{
		UnknownEqualFactor:   0.1,
		UnknownRangeFactor:   0.3,
		NotNullFactor:        0.8,
		NullFactor:           0.2,
		DefaultEqualFraction: 0.1,
		DefaultRangeFraction: 0.3,
	},
}

var globalConf atomic.Pointer[Config]

func init() {
	conf := defaultConf
	globalConf.Store(&conf)
}

// NewConfig creates a new config instance with default values.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration.
// Other parts of the system read their tunables through this function.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the global atomic slot.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config file %s contains unknown configuration options: %v", confFile, undecoded)
	}
	return nil
}
