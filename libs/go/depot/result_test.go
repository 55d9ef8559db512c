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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultHasError(t *testing.T) {
	var r Result
	r.HandleOutput(TextLine{Channel: Stdout, Text: "//depot/file.txt#1 - added"})
	require.False(t, r.HasError())

	r.HandleOutput(TextLine{Channel: Stderr, Text: "//depot/other.txt - no such file(s)."})
	require.True(t, r.HasError())
	require.Equal(t, []string{"//depot/other.txt - no such file(s)."}, r.StderrLines())
}

func TestResultHasErrorRegex(t *testing.T) {
	var r Result
	r.HandleOutput(TextLine{Channel: Stderr, Text: "Can't clobber writable file foo.txt"})
	require.True(t, r.HasErrorRegex("clobber"))
	require.False(t, r.HasErrorRegex("needs resolve"))
}

func TestResultMerge(t *testing.T) {
	var a, b Result
	a.HandleOutput(TextLine{Channel: Stdout, Text: "a"})
	b.HandleOutput(TextLine{Channel: Stdout, Text: "b"})
	b.HandleStat(TagRecord{"depotFile": "//depot/b"})

	a.Merge(&b)
	require.Len(t, a.Texts, 2)
	require.Len(t, a.Tags, 1)
}

func TestResultMergeNil(t *testing.T) {
	var a Result
	a.HandleOutput(TextLine{Channel: Stdout, Text: "a"})
	a.Merge(nil)
	require.Len(t, a.Texts, 1)
}
