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
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Diff renders a two-file diff by writing it to a temporary file via the
// session's own diff command, then streaming the temp file back as text
// lines, per spec.md §4.B. External diff programs are disabled for the
// duration of the call so the built-in diff is always used.
func (s *session) Diff(file0, file1 string) ([]string, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if cfg.Port == "" {
		return nil, ErrNotConnected
	}

	tmp, err := os.CreateTemp("", "p4vfs-diff-*.txt")
	if err != nil {
		return nil, fmt.Errorf("depot: diff temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{"-C", "utf8"}
	if cfg.User != "" {
		args = append(args, "-u", cfg.User)
	}
	if cfg.Port != "" {
		args = append(args, "-p", cfg.Port)
	}
	args = append(args, "diff2", "-u", file0, file1)

	c := exec.Command(s.exePath, args...)
	c.Env = disableExternalDiffEnv(os.Environ())
	out, err := c.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("depot: diff: %w", err)
		}
	}
	if err := os.WriteFile(tmpPath, out, 0o600); err != nil {
		return nil, fmt.Errorf("depot: diff: writing temp file: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("depot: diff: reopening temp file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// disableExternalDiffEnv strips P4DIFF/P4DIFF2 so the server always falls
// back to its own diff implementation rather than shelling out to an
// external tool, per spec.md §4.B.
func disableExternalDiffEnv(base []string) []string {
	out := make([]string, 0, len(base)+2)
	for _, kv := range base {
		if strings.HasPrefix(kv, "P4DIFF=") || strings.HasPrefix(kv, "P4DIFF2=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "P4DIFF=", "P4DIFF2=")
}
