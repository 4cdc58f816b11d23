package paper

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

var ErrUndecodable = errors.New("paper: source is not valid text")

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}

	inputencOption = regexp.MustCompile(`\\usepackage\s*\[([^\]]+)\]\s*\{inputenc\}`)
)

// inputencLabels maps LaTeX inputenc option names to WHATWG encoding labels.
var inputencLabels = map[string]string{
	"latin1":   "iso-8859-1",
	"latin2":   "iso-8859-2",
	"latin5":   "iso-8859-9",
	"latin9":   "iso-8859-15",
	"ansinew":  "windows-1252",
	"cp1250":   "windows-1250",
	"cp1251":   "windows-1251",
	"cp1252":   "windows-1252",
	"koi8-r":   "koi8-r",
	"koi8-u":   "koi8-u",
	"applemac": "macintosh",
}

// DecodeSource turns a .tex member into text. UTF-8 (with or without BOM)
// and BOM-marked UTF-16 are accepted as is; otherwise the encoding named by
// \usepackage[...]{inputenc} is tried. Anything else is undecodable.
func DecodeSource(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		raw = raw[len(utf8BOM):]
	case bytes.HasPrefix(raw, utf16LEBOM), bytes.HasPrefix(raw, utf16BEBOM):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err != nil || !utf8.Valid(out) {
			return "", ErrUndecodable
		}
		return string(out), nil
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	m := inputencOption.FindSubmatch(raw)
	if m == nil {
		return "", ErrUndecodable
	}
	for _, opt := range strings.Split(string(m[1]), ",") {
		label, ok := inputencLabels[strings.ToLower(strings.TrimSpace(opt))]
		if !ok {
			continue
		}
		enc, _ := charset.Lookup(label)
		if enc == nil {
			continue
		}
		out, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(out) {
			return string(out), nil
		}
	}
	return "", ErrUndecodable
}

// StripComments removes lines whose first non-blank character is '%'.
func StripComments(src string) string {
	lines := strings.Split(src, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "%") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
