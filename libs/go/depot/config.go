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

package depot

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config describes one depot identity: the server, the impersonated user
// and client, and the client's local root. Only (Port, User, Client)
// participate in session-pool keying (compared case-insensitively); the
// rest informs Connect/Login.
type Config struct {
	Host      string
	Port      string
	Client    string
	User      string
	Passwd    string
	Ignore    string
	Directory string
}

// PoolKey returns the case-insensitive triple the session pool keys on.
func (c Config) PoolKey() PoolKey {
	return PoolKey{
		Port:   strings.ToLower(c.Port),
		User:   strings.ToLower(c.User),
		Client: strings.ToLower(c.Client),
	}
}

// PoolKey is the normalized (port, user, client) identity a session pool
// buckets on.
type PoolKey struct {
	Port   string
	User   string
	Client string
}

// ServerRedirect rewrites a port's server-name portion before it is used to
// connect, e.g. routing an SSL-fronted name at an internal edge address.
type ServerRedirect struct {
	Pattern string
	Address string
}

// ResolveDepotServerName applies the first matching redirect in redirects
// to port, returning port unchanged if nothing matches. This grounds
// end-to-end scenario 6 of the specification.
func ResolveDepotServerName(port string, redirects []ServerRedirect) string {
	for _, r := range redirects {
		re, err := regexp.Compile("^" + r.Pattern + "$")
		if err != nil {
			continue
		}
		if re.MatchString(port) {
			return r.Address
		}
	}
	return port
}

// DiscoverConfig walks from startDir upward looking for a P4CONFIG file,
// then layers in environment variables, then the local host name, filling
// in whatever fields base leaves empty. This implements spec.md §6's
// "Config discovery" contract.
func DiscoverConfig(base Config, startDir string) Config {
	cfg := base

	if file := findConfigFile(startDir); file != "" {
		if kv, err := parseConfigFile(file); err == nil {
			applyConfigFile(&cfg, kv)
		}
	}

	applyEnv(&cfg)

	if cfg.Client == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Client = host
		}
	}
	return cfg
}

// configFileName is the well-known file DiscoverConfig looks for; it may
// itself be overridden by P4CONFIG, matching `p4 set P4CONFIG`.
const configFileName = ".p4config"

func findConfigFile(startDir string) string {
	name := configFileName
	if env := os.Getenv("P4CONFIG"); env != "" {
		name = env
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func parseConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kv := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return kv, nil
}

func applyConfigFile(cfg *Config, kv map[string]string) {
	if cfg.Port == "" {
		cfg.Port = kv["P4PORT"]
	}
	if cfg.Client == "" {
		cfg.Client = kv["P4CLIENT"]
	}
	if cfg.User == "" {
		cfg.User = kv["P4USER"]
	}
	if cfg.Passwd == "" {
		cfg.Passwd = kv["P4PASSWD"]
	}
	if cfg.Host == "" {
		cfg.Host = kv["P4HOST"]
	}
}

func applyEnv(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = os.Getenv("P4PORT")
	}
	if cfg.Client == "" {
		cfg.Client = os.Getenv("P4CLIENT")
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("P4USER")
	}
	if cfg.Passwd == "" {
		cfg.Passwd = os.Getenv("P4PASSWD")
	}
	if cfg.Host == "" {
		cfg.Host = os.Getenv("P4HOST")
	}
}
