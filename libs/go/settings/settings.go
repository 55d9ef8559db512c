// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package settings is the process-wide typed configuration registry spec.md
// §9 calls for: populated from installer-registered defaults, a config
// file, and environment on first use, then threaded down as an explicit
// App context rather than read through a singleton.
package settings

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/p4vfs/core/libs/go/depot"
)

// Settings is the typed property map every component in this module reads
// its tunables from. Field names mirror the canonical names spec.md's
// §5 Timeouts section and §4 component descriptions use.
type Settings struct {
	// ShareModeDuringHydration: see spec.md §9's Open Question — the
	// original defaults this to false, but its own test suite sometimes
	// relies on it being true. Kept as a plain setting rather than resolved
	// one way; Load reads and defaults it, but no hydration code consults it.
	ShareModeDuringHydration bool `mapstructure:"share_mode_during_hydration" yaml:"share_mode_during_hydration"`

	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`
	SessionGCInterval  time.Duration `mapstructure:"session_gc_interval" yaml:"session_gc_interval"`
	SessionPoolSize    int           `mapstructure:"session_pool_size" yaml:"session_pool_size"`

	FileOpenRetryCount    int           `mapstructure:"file_open_retry_count" yaml:"file_open_retry_count"`
	FileOpenRetryInterval time.Duration `mapstructure:"file_open_retry_interval" yaml:"file_open_retry_interval"`

	WorkerPoolSize     int `mapstructure:"worker_pool_size" yaml:"worker_pool_size"`
	MaxSyncConnections int `mapstructure:"max_sync_connections" yaml:"max_sync_connections"`

	HydrationMethod string `mapstructure:"hydration_method" yaml:"hydration_method"`

	ExcludedProcesses []string `mapstructure:"excluded_processes" yaml:"excluded_processes"`
	ResidentPattern   string   `mapstructure:"resident_pattern" yaml:"resident_pattern"`

	ServerRedirects []depot.ServerRedirect `mapstructure:"server_redirects" yaml:"server_redirects"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	P4Executable string `mapstructure:"p4_executable" yaml:"p4_executable"`
}

const envPrefix = "P4VFS"

// InstallDefaults returns the installer-registered defaults every
// deployment starts from, per spec.md §5's Timeouts and Pool-size values.
func InstallDefaults() Settings {
	return Settings{
		ShareModeDuringHydration: false,
		SessionIdleTimeout:       5 * time.Minute,
		SessionGCInterval:        5 * time.Minute,
		SessionPoolSize:          8,
		FileOpenRetryCount:       8,
		FileOpenRetryInterval:    250 * time.Millisecond,
		WorkerPoolSize:           8,
		MaxSyncConnections:       8,
		HydrationMethod:          "copy",
		ResidentPattern:          "",
		MetricsEnabled:           false,
		MetricsAddr:              ":9175",
		P4Executable:             "p4",
	}
}

// Load layers environment variables (P4VFS_*) and an optional config file
// over InstallDefaults, in that precedence: environment wins over file,
// file wins over defaults — mirroring the CLI > env > file > defaults
// layering this registry generalizes from the teacher's config loader.
func Load(configPath string) (Settings, error) {
	defaults := InstallDefaults()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v, defaults)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Settings{}, err
			}
		}
	}

	var out Settings
	if err := v.Unmarshal(&out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func setViperDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("share_mode_during_hydration", d.ShareModeDuringHydration)
	v.SetDefault("session_idle_timeout", d.SessionIdleTimeout)
	v.SetDefault("session_gc_interval", d.SessionGCInterval)
	v.SetDefault("session_pool_size", d.SessionPoolSize)
	v.SetDefault("file_open_retry_count", d.FileOpenRetryCount)
	v.SetDefault("file_open_retry_interval", d.FileOpenRetryInterval)
	v.SetDefault("worker_pool_size", d.WorkerPoolSize)
	v.SetDefault("max_sync_connections", d.MaxSyncConnections)
	v.SetDefault("hydration_method", d.HydrationMethod)
	v.SetDefault("resident_pattern", d.ResidentPattern)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("p4_executable", d.P4Executable)
}
