// Package extractor turns individual uploaded files into text for packing.
package extractor

import (
	"errors"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var ErrUnreadable = errors.New("unreadable document")

type Kind string

const (
	KindText   Kind = "text"
	KindPDF    Kind = "pdf"
	KindDOCX   Kind = "docx"
	KindBinary Kind = "binary"
)

// Extract returns the text of a single file. Binary files yield KindBinary
// and no text; documents that cannot be parsed return ErrUnreadable.
func Extract(name string, data []byte) (string, Kind, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		text, err := ExtractPDF(data)
		return text, KindPDF, err
	case ".docx":
		text, err := ExtractDOCX(data)
		return text, KindDOCX, err
	}

	if !LooksLikeText(data) {
		return "", KindBinary, nil
	}

	return NormalizeText(DecodeText(data)), KindText, nil
}

// DecodeText converts data to a Go string, honoring UTF-8 and UTF-16 byte
// order marks and falling back to Windows-1252 for invalid UTF-8.
func DecodeText(data []byte) string {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return string(data[3:])
	}

	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		if decoded, err := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), data); err == nil {
			return decoded
		}
	}

	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		if decoded, err := decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), data); err == nil {
			return decoded
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}

	if decoded, err := decodeWith(charmap.Windows1252.NewDecoder(), data); err == nil {
		return decoded
	}
	if decoded, err := decodeWith(charmap.ISO8859_1.NewDecoder(), data); err == nil {
		return decoded
	}

	return strings.ToValidUTF8(string(data), "�")
}

func decodeWith(t transform.Transformer, data []byte) (string, error) {
	decoded, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// NormalizeText unifies line endings and drops NUL bytes. Indentation is
// kept since it is significant in YAML templates.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}

// LooksLikeText samples the head of data and reports whether it is text.
func LooksLikeText(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	// UTF-16 BOMs are text even though half the bytes are zero.
	if len(data) >= 2 && ((data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)) {
		return true
	}

	sample := data
	if len(sample) > 512 {
		// Cut on a rune boundary so a multibyte character is not split.
		n := 512
		for n > 508 && !utf8.RuneStart(data[n]) {
			n--
		}
		sample = sample[:n]
	}

	printable := 0
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRune(sample[i:])
		switch {
		case r == 0:
			return false
		case r == utf8.RuneError && size == 1:
			// Legacy 8-bit encodings still count as text.
			if sample[i] >= 0xA0 {
				printable++
			}
		case r == '\t' || r == '\n' || r == '\r' || r >= 32:
			printable += size
		}
		i += size
	}

	return float64(printable)/float64(len(sample)) >= 0.8
}
