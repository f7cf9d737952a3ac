package ingest

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// Decode interprets file content as text: UTF-8 first, then Latin-1,
// then Windows-1252. A failure is recorded on the File node by the
// caller and chunking is skipped; the stage itself does not fail.
func Decode(content []byte) (string, error) {
	content = StripBOM(content)

	if binaryContent(content) {
		return "", errs.New(errs.KindDecoding, "binary content")
	}
	if ValidUTF8(content) {
		return string(content), nil
	}
	if s, ok := decodeCharmap(content, charmap.ISO8859_1); ok {
		return s, nil
	}
	if s, ok := decodeCharmap(content, charmap.Windows1252); ok {
		return s, nil
	}
	return "", errs.New(errs.KindDecoding, "no fallback encoding decoded the content")
}

// decodeCharmap maps single-byte content through a charmap, rejecting
// bytes the charmap leaves undefined. Latin-1 rejects the C1 control
// range so genuinely Windows-1252 text falls through to that decoder.
func decodeCharmap(content []byte, cm *charmap.Charmap) (string, bool) {
	runes := make([]rune, 0, len(content))
	for _, b := range content {
		r := cm.DecodeByte(b)
		if r == '�' {
			return "", false
		}
		if cm == charmap.ISO8859_1 && b >= 0x80 && b <= 0x9F {
			return "", false
		}
		runes = append(runes, r)
	}
	return string(runes), true
}
