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

import "io"

// Command is a single invocation: a name ("sync", "print", "fstat", ...),
// its arguments, an optional stdin stream, and a handful of flags that
// change how Run dispatches it.
type Command struct {
	Name    string
	Args    []string
	Stdin   io.Reader
	Untagged bool
}

// Argv returns the full argument vector, name first, as it would be typed
// at a shell: `p4 <name> <args...>`.
func (c Command) Argv() []string {
	out := make([]string, 0, len(c.Args)+1)
	out = append(out, c.Name)
	out = append(out, c.Args...)
	return out
}

// ResultHandler receives the typed event stream a running Command produces.
// Concrete Result kinds implement only the subset of methods they care
// about; Run dispatches to whichever of these a Result happens to satisfy,
// the Go-idiomatic rendering of spec.md §9's "small set of typed events
// delivered to a trait implemented by result kinds".
type ResultHandler interface {
	// HandleInfo receives free-text informational output at the given
	// indentation level (0, 1 or 2, mirroring p4's "... " prefixing).
	HandleInfo(level int, text string)
}

// OutputHandler receives raw command stdout/stderr lines, classified.
type OutputHandler interface {
	HandleOutput(line TextLine)
}

// BinaryHandler receives binary payload chunks, used by `print` against
// non-text file types.
type BinaryHandler interface {
	HandleBinary(data []byte)
}

// StatHandler receives one tagged record per call.
type StatHandler interface {
	HandleStat(rec TagRecord)
}

// InputHandler supplies bytes to commands (like `client -i`) that read a
// spec from stdin.
type InputHandler interface {
	HandleInput() io.Reader
}

// PromptHandler answers interactive prompts (e.g. "Enter password:") a
// command issues mid-run.
type PromptHandler interface {
	HandlePrompt(prompt string) string
}

// RetryHandler is notified before a command is retried, giving a Result a
// chance to reset any accumulated state.
type RetryHandler interface {
	HandleRetry(context, err string)
}

// Tagger marks a ResultHandler as wanting tagged (-Ztag) output. Commands
// without a Tagger-implementing handler run in plain-text mode.
type Tagger interface {
	WantsTagProtocol()
}
