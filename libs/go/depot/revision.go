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
	"strconv"
	"strings"
	"time"
)

// Revision is the closed sum type of spec.md §3: Empty, None, Have, Head,
// a fixed revision Number, a Changelist, a Label, a Date, Now, or a Range
// of two revisions. It is modeled as an interface with one unexported
// implementation per variant rather than a tagged union struct, since Go
// has no sum types and this keeps String()/equality per-variant instead of
// a sprawling switch living outside the type.
type Revision interface {
	String() string
	revisionTag() revisionTag
}

type revisionTag int

const (
	tagEmpty revisionTag = iota
	tagNone
	tagHave
	tagHead
	tagNumber
	tagChangelist
	tagLabel
	tagDate
	tagNow
	tagRange
)

type revEmpty struct{}
type revNone struct{}
type revHave struct{}
type revHead struct{}
type revNumber struct{ n int32 }
type revChangelist struct{ cl int32 }
type revLabel struct{ name string }
type revDate struct{ t time.Time }
type revNow struct{}
type revRange struct{ from, to Revision }

func (revEmpty) String() string      { return "" }
func (revNone) String() string       { return "#none" }
func (revHave) String() string       { return "#have" }
func (revHead) String() string       { return "#head" }
func (r revNumber) String() string   { return fmt.Sprintf("#%d", r.n) }
func (r revChangelist) String() string { return fmt.Sprintf("@%d", r.cl) }
func (r revLabel) String() string    { return "@" + r.name }
func (r revDate) String() string     { return "@" + r.t.UTC().Format(dateRevisionLayout) }
func (revNow) String() string        { return "@now" }
func (r revRange) String() string {
	// A range pinned to one changelist renders in its short "@=N" form.
	if from, ok := r.from.(revChangelist); ok {
		if to, ok := r.to.(revChangelist); ok && from.cl == to.cl {
			return fmt.Sprintf("@=%d", from.cl)
		}
	}
	return r.from.String() + "," + r.to.String()
}

func (revEmpty) revisionTag() revisionTag      { return tagEmpty }
func (revNone) revisionTag() revisionTag       { return tagNone }
func (revHave) revisionTag() revisionTag       { return tagHave }
func (revHead) revisionTag() revisionTag       { return tagHead }
func (revNumber) revisionTag() revisionTag     { return tagNumber }
func (revChangelist) revisionTag() revisionTag { return tagChangelist }
func (revLabel) revisionTag() revisionTag      { return tagLabel }
func (revDate) revisionTag() revisionTag       { return tagDate }
func (revNow) revisionTag() revisionTag        { return tagNow }
func (revRange) revisionTag() revisionTag      { return tagRange }

const dateRevisionLayout = "2006/01/02:15:04:05"

// Exported constructors.

var (
	RevisionEmpty Revision = revEmpty{}
	RevisionNone  Revision = revNone{}
	RevisionHave  Revision = revHave{}
	RevisionHead  Revision = revHead{}
	RevisionNow   Revision = revNow{}
)

func RevisionNumber(n int32) Revision     { return revNumber{n: n} }
func RevisionChangelist(cl int32) Revision { return revChangelist{cl: cl} }
func RevisionLabel(name string) Revision   { return revLabel{name: name} }
func RevisionDate(t time.Time) Revision    { return revDate{t: t} }
func RevisionRange(from, to Revision) Revision {
	return revRange{from: from, to: to}
}

// ParseRevision is total across every canonical form in spec.md §3: "#42",
// "@mylabel", "@2019/08/15:11:24:45", "#have,#head", "@=4569" (meaning
// "@4569,@4569"), and the bare keywords. Unrecognized forms yield
// RevisionNone, matching spec.md's "unknown forms yield None".
func ParseRevision(s string) Revision {
	s = strings.TrimSpace(s)
	if s == "" {
		return RevisionEmpty
	}

	if strings.Contains(s, ",") {
		parts := strings.SplitN(s, ",", 2)
		return RevisionRange(ParseRevision(parts[0]), ParseRevision(parts[1]))
	}

	switch {
	case s == "#none":
		return RevisionNone
	case s == "#have":
		return RevisionHave
	case s == "#head":
		return RevisionHead
	case s == "@now":
		return RevisionNow
	case strings.HasPrefix(s, "#"):
		if n, err := strconv.ParseInt(s[1:], 10, 32); err == nil {
			return RevisionNumber(int32(n))
		}
		return RevisionNone
	case strings.HasPrefix(s, "@="):
		if cl, err := strconv.ParseInt(s[2:], 10, 32); err == nil {
			return RevisionRange(RevisionChangelist(int32(cl)), RevisionChangelist(int32(cl)))
		}
		return RevisionNone
	case strings.HasPrefix(s, "@"):
		body := s[1:]
		if cl, err := strconv.ParseInt(body, 10, 32); err == nil {
			return RevisionChangelist(int32(cl))
		}
		if t, err := time.Parse(dateRevisionLayout, body); err == nil {
			return RevisionDate(t)
		}
		return RevisionLabel(body)
	default:
		return RevisionNone
	}
}
