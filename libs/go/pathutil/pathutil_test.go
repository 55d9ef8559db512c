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

package pathutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToExtendedShortPathUnchanged(t *testing.T) {
	require.Equal(t, `C:\short\path`, ToExtended(`C:\short\path`))
}

func TestToExtendedLongPath(t *testing.T) {
	long := `C:\` + strings.Repeat(`a\`, 150) + "file.txt"
	got := ToExtended(long)
	require.True(t, strings.HasPrefix(got, extendedPrefix))
	require.Equal(t, long, TrimExtended(got))
}

func TestEqualFoldIgnoresExtendedPrefixAndCase(t *testing.T) {
	require.True(t, EqualFold(`\\?\C:\Depot\A.CPP`, `C:\depot\a.cpp`))
	require.False(t, EqualFold(`C:\depot\a.cpp`, `C:\depot\b.cpp`))
}

func TestContainsToken(t *testing.T) {
	cases := []struct {
		haystack, needle string
		caseSensitive    bool
		want             bool
	}{
		{"unix,mac,win", "mac", true, true},
		{"unix,mac,win", "MAC", true, false},
		{"unix,mac,win", "MAC", false, true},
		{"unix,mac,win", "linux", false, false},
		{"", "", true, true},
	}
	for _, c := range cases {
		got := ContainsToken(",", c.haystack, c.needle, c.caseSensitive)
		require.Equal(t, c.want, got, "haystack=%q needle=%q caseSensitive=%v", c.haystack, c.needle, c.caseSensitive)
	}
}

func TestSplitDepotPath(t *testing.T) {
	dir, base := SplitDepotPath("//depot/src/a.cpp")
	require.Equal(t, "//depot/src", dir)
	require.Equal(t, "a.cpp", base)

	dir, base = SplitDepotPath("nodirs")
	require.Equal(t, "", dir)
	require.Equal(t, "nodirs", base)
}

func TestHashPathStableAndCaseInsensitive(t *testing.T) {
	require.Equal(t, HashPath(`C:\Depot\A.cpp`), HashPath(`c:\depot\a.cpp`))
}
