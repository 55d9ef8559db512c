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

import "regexp"

// Result aggregates the two ordered sequences a command produces: free-text
// lines (Texts) and tagged records (Tags). Either may be empty. Result
// satisfies OutputHandler and StatHandler itself, so it can be used
// directly as the ResultHandler for commands whose caller only wants the
// raw sequences rather than a specialized typed result (FstatResult,
// PrintResult, ...).
type Result struct {
	Texts []TextLine
	Tags  []TagRecord
}

// HandleInfo is a no-op: info lines already arrive through HandleOutput.
func (r *Result) HandleInfo(level int, text string) {}
func (r *Result) HandleOutput(line TextLine)        { r.Texts = append(r.Texts, line) }
func (r *Result) HandleStat(rec TagRecord)   { r.Tags = append(r.Tags, rec) }
func (r *Result) WantsTagProtocol()          {}

// HasError reports whether any text line was read from Stderr, the
// definition spec.md §4.B gives for a failed command.
func (r *Result) HasError() bool {
	for _, t := range r.Texts {
		if t.Channel == Stderr {
			return true
		}
	}
	return false
}

// HasErrorRegex reports whether pattern matches, case-insensitively, any
// Stderr line.
func (r *Result) HasErrorRegex(pattern string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	for _, t := range r.Texts {
		if t.Channel == Stderr && re.MatchString(t.Text) {
			return true
		}
	}
	return false
}

// StderrLines returns every Stderr line's text, in order.
func (r *Result) StderrLines() []string {
	var out []string
	for _, t := range r.Texts {
		if t.Channel == Stderr {
			out = append(out, t.Text)
		}
	}
	return out
}

// Merge folds other's lines and tags into r, preserving order. Used when a
// single logical operation (e.g. a sync split into sub-batches) wants one
// combined Result.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Texts = append(r.Texts, other.Texts...)
	r.Tags = append(r.Tags, other.Tags...)
}
