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
	"fmt"
	"os"
	"path/filepath"
)

// ResolveTicketsPath returns the tickets file path, first writable wins, in
// the precedence order spec.md §6 gives: P4TICKETS env, the discovered
// config file's P4TICKETS, %USERPROFILE%\p4tickets.txt, C:\Users\<user>\
// p4tickets.txt, then an expanded %USERPROFILE% form.
func ResolveTicketsPath(cfg Config, configFileTickets string) string {
	return resolveCredentialPath("p4tickets.txt", os.Getenv("P4TICKETS"), configFileTickets, cfg.User)
}

// ResolveTrustPath applies the same precedence order to the trust file.
func ResolveTrustPath(cfg Config, configFileTrust string) string {
	return resolveCredentialPath("p4trust.txt", os.Getenv("P4TRUST"), configFileTrust, cfg.User)
}

func resolveCredentialPath(defaultName, envPath, configPath, user string) string {
	candidates := []string{envPath, configPath}

	if profile := os.Getenv("USERPROFILE"); profile != "" {
		candidates = append(candidates, filepath.Join(profile, defaultName))
	}
	if user != "" {
		candidates = append(candidates, filepath.Join("C:\\Users", user, defaultName))
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		candidates = append(candidates, filepath.Join(os.ExpandEnv(profile), defaultName))
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if isWritableLocation(c) {
			return c
		}
	}
	// Nothing on the candidate list is writable yet (e.g. a clean profile);
	// fall back to the first non-empty candidate so a later write can
	// create it.
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return defaultName
}

// isWritableLocation reports whether path already exists, or its parent
// directory exists and would accept a new file.
func isWritableLocation(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// ticketCandidateUsers scans a tickets file for candidate user names,
// returning them in file order. Used by the login ladder (§4.B step ii) to
// find a client spec's owner among the tickets already on disk.
func ticketCandidateUsers(ticketsPath string) ([]string, error) {
	data, err := os.ReadFile(ticketsPath)
	if err != nil {
		return nil, fmt.Errorf("depot: reading tickets file: %w", err)
	}
	var users []string
	seen := map[string]bool{}
	for _, line := range splitLines(string(data)) {
		user, ok := ticketLineUser(line)
		if !ok || seen[user] {
			continue
		}
		seen[user] = true
		users = append(users, user)
	}
	return users, nil
}

// ticketLineUser parses one line of a p4tickets.txt file, of the form
// "server:port=user:ticket", returning the user portion.
func ticketLineUser(line string) (string, bool) {
	eq := indexByte(line, '=')
	if eq < 0 {
		return "", false
	}
	value := line[eq+1:]
	colon := indexByte(value, ':')
	if colon <= 0 {
		return "", false
	}
	return value[:colon], true
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimCR(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
