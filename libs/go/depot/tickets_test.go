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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTicketsPathPrefersEnv(t *testing.T) {
	dir := t.TempDir()
	ticketsPath := filepath.Join(dir, "p4tickets.txt")
	require.NoError(t, os.WriteFile(ticketsPath, []byte(""), 0o600))

	t.Setenv("P4TICKETS", ticketsPath)
	got := ResolveTicketsPath(Config{User: "alice"}, "")
	require.Equal(t, ticketsPath, got)
}

func TestResolveTicketsPathFallsBackToUserProfile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("P4TICKETS", "")
	t.Setenv("USERPROFILE", dir)

	got := ResolveTicketsPath(Config{User: "alice"}, "")
	require.Equal(t, filepath.Join(dir, "p4tickets.txt"), got)
}

func TestTicketCandidateUsers(t *testing.T) {
	dir := t.TempDir()
	ticketsPath := filepath.Join(dir, "p4tickets.txt")
	content := "ssl:server:1666=alice:ABCDEF0123456789\n" +
		"ssl:server:1666=bob:FEDCBA9876543210\n" +
		"ssl:server:1666=alice:ABCDEF0123456789\n"
	require.NoError(t, os.WriteFile(ticketsPath, []byte(content), 0o600))

	users, err := ticketCandidateUsers(ticketsPath)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, users)
}

func TestTicketCandidateUsersMissingFile(t *testing.T) {
	_, err := ticketCandidateUsers(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestTicketLineUser(t *testing.T) {
	user, ok := ticketLineUser("ssl:server:1666=alice:ABCDEF0123456789")
	require.True(t, ok)
	require.Equal(t, "alice", user)

	_, ok = ticketLineUser("not a ticket line")
	require.False(t, ok)
}
