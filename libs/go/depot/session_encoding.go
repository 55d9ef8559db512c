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
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineEnding selects how a hydrated file's line terminators are rewritten
// once its depot bytes have been decoded, per spec.md §4.B's Encoding
// contract: text files default to the platform's native CRLF unless the
// client's LineEnd preference says otherwise.
type LineEnding int

const (
	LineEndPlatform LineEnding = iota
	LineEndUnix
	LineEndMac
	LineEndShare
)

// Charset names the server-side charset a depot file's bytes are declared
// in, mirroring the small set `p4 print`/`p4 sync` negotiate via -C.
type Charset string

const (
	CharsetNone      Charset = ""
	CharsetUTF8      Charset = "utf8"
	CharsetUTF16     Charset = "utf16"
	CharsetUTF16LE   Charset = "utf16le-bom"
	CharsetUTF16BE   Charset = "utf16be-bom"
	CharsetISO8859_1 Charset = "iso8859-1"
)

// DecodeCharset transforms raw depot bytes in the given charset into UTF-8,
// the in-memory representation every other component in this module works
// in. Binary and CharsetNone payloads pass through unchanged.
func DecodeCharset(raw []byte, charset Charset) ([]byte, error) {
	dec := decoderFor(charset)
	if dec == nil {
		return raw, nil
	}
	out, _, err := transform.Bytes(dec.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("depot: decode charset %s: %w", charset, err)
	}
	return out, nil
}

// EncodeForHydration is the inverse of DecodeCharset followed by the
// terminator/BOM rewrite a placeholder's hydrated bytes receive before
// being written to the sparse file, per spec.md §4.B: "BOM insertion and
// LF->CRLF translation happen after charset decoding, never before."
func EncodeForHydration(utf8Bytes []byte, charset Charset, lineEnding LineEnding) ([]byte, error) {
	converted := utf8Bytes
	if lineEnding != LineEndUnix {
		converted = lfToCRLF(converted)
	}

	enc := encoderFor(charset)
	if enc == nil {
		return withBOM(converted, charset), nil
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), converted)
	if err != nil {
		return nil, fmt.Errorf("depot: encode charset %s: %w", charset, err)
	}
	return withBOM(out, charset), nil
}

// ClassifyFileType maps a server-reported p4 file type (the same string
// `p4 sync -Ztag`/`p4 fstat` report in their "type"/"headType" fields,
// e.g. "text", "utf16", "binary", with an optional "+x"-style modifier
// suffix) to the charset/line-ending pair EncodeForHydration needs. An
// empty or unrecognized type is treated as an opaque binary payload: no
// charset conversion, no line-ending rewrite.
func ClassifyFileType(fileType string) (Charset, LineEnding) {
	base := fileType
	if idx := strings.IndexByte(base, '+'); idx >= 0 {
		base = base[:idx]
	}
	switch base {
	case "text", "xtext", "ktext":
		return CharsetNone, LineEndPlatform
	case "utf8":
		return CharsetUTF8, LineEndPlatform
	case "utf16", "unicode":
		return CharsetUTF16, LineEndPlatform
	default:
		return CharsetNone, LineEndUnix
	}
}

func decoderFor(charset Charset) encoding.Encoding {
	switch charset {
	case CharsetUTF16, CharsetUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case CharsetUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	default:
		return nil
	}
}

func encoderFor(charset Charset) encoding.Encoding {
	switch charset {
	case CharsetUTF16, CharsetUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case CharsetUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return nil
	}
}

func withBOM(data []byte, charset Charset) []byte {
	switch charset {
	case CharsetUTF8:
		bom := []byte{0xEF, 0xBB, 0xBF}
		if bytes.HasPrefix(data, bom) {
			return data
		}
		return append(bom, data...)
	default:
		return data
	}
}

// lfToCRLF normalizes bare LF to CRLF without doubling existing CRLF pairs.
func lfToCRLF(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data) + len(data)/32)
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == '\n' && (i == 0 || data[i-1] != '\r') {
			out.WriteByte('\r')
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}
