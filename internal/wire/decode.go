package wire

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Charset names the byte encoding of a line.
type Charset string

const (
	CharsetUTF8   Charset = "utf-8"
	CharsetLatin1 Charset = "latin-1"
)

// ParseCharset accepts the usual spellings of the supported charsets.
func ParseCharset(value string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "utf-8", "utf8":
		return CharsetUTF8, nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return CharsetLatin1, nil
	default:
		return "", fmt.Errorf("unsupported charset %q", value)
	}
}

// DecodeError reports a line whose bytes are not valid in the configured charset.
type DecodeError struct {
	Charset Charset
	Offset  int
	Raw     []byte
}

func (e *DecodeError) Error() string {
	if e.Offset >= 0 && e.Offset < len(e.Raw) {
		return fmt.Sprintf("decode %s line: invalid byte 0x%02x at offset %d", e.Charset, e.Raw[e.Offset], e.Offset)
	}
	return fmt.Sprintf("decode %s line of %d bytes", e.Charset, len(e.Raw))
}

// Decode converts raw line bytes to a string.
func Decode(raw []byte, charset Charset) (string, error) {
	switch charset {
	case CharsetLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", &DecodeError{Charset: charset, Offset: -1, Raw: append([]byte(nil), raw...)}
		}
		return string(out), nil
	default:
		for offset := 0; offset < len(raw); {
			r, size := utf8.DecodeRune(raw[offset:])
			if r == utf8.RuneError && size <= 1 {
				return "", &DecodeError{Charset: CharsetUTF8, Offset: offset, Raw: append([]byte(nil), raw...)}
			}
			offset += size
		}
		return string(raw), nil
	}
}

// NewBOMReader strips a leading UTF-8 byte order mark and transcodes UTF-16
// streams that start with a BOM into UTF-8. Streams without a BOM pass through.
func NewBOMReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

var invisible = strings.NewReplacer("\ufeff", "", "\u200b", "", "\x00", "")

// Sanitize applies NFKC normalisation, removes invisible and control
// characters other than tab, CR and LF, and trims surrounding whitespace.
func Sanitize(s string) string {
	s = invisible.Replace(norm.NFKC.String(s))
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\r' || r == '\n':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s))
}
