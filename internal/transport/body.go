package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
)

// FallbackEncoding is used when neither the Content-Type header nor a meta tag
// names a charset.
var FallbackEncoding encoding.Encoding = japanese.ShiftJIS

// gunzip inflates a gzip content-encoded body.
func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip body: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate gzip body: %w", err)
	}
	return out, nil
}

// decodeText converts a body to UTF-8 using the charset declared in
// contentType or in a meta tag, falling back to FallbackEncoding. Bytes that
// can't be decoded become U+FFFD.
func decodeText(raw []byte, contentType string) string {
	enc := detectEncoding(raw, contentType)
	if enc == encoding.Nop {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

func detectEncoding(raw []byte, contentType string) encoding.Encoding {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	// DetermineEncoding answers windows-1252 when it found nothing to go on.
	if !certain && name == "windows-1252" {
		return FallbackEncoding
	}
	if name == "utf-8" {
		return encoding.Nop
	}
	return enc
}

// EncodeForm converts s to the fallback encoding for form submission.
// Characters with no mapping are replaced.
func EncodeForm(s string) []byte {
	out, err := encoding.ReplaceUnsupported(FallbackEncoding.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
