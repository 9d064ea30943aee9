package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/slok/restorewatch/internal/model"
)

// HeaderSize is the minimum number of bytes an encrypted artifact starts with:
// the salt, the nonce and the authentication tag.
const HeaderSize = SaltSize + NonceSize + TagSize

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
)

// Inspect classifies an artifact from its first bytes and its filename. It has no side effects.
func Inspect(header []byte, filename string) model.Classification {
	name := strings.ToLower(filepath.Base(filename))
	stripped, hasEncSuffix := strings.CutSuffix(name, ".enc")
	kind, recognized := kindFromName(stripped)

	return model.Classification{
		Kind:      kind,
		Encrypted: looksEncrypted(header) || (hasEncSuffix && recognized),
	}
}

// InspectReader peeks the header of the artifact without consuming it, so the same reader can
// be used afterwards to upload the artifact. When the header can't be read, a
// ClassificationError is returned together with a filename only classification.
func InspectReader(r *bufio.Reader, filename string) (model.Classification, error) {
	header, err := r.Peek(HeaderSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return Inspect(nil, filename), &model.ClassificationError{Filename: filename, Err: err}
	}

	return Inspect(header, filename), nil
}

func kindFromName(name string) (kind model.Kind, recognized bool) {
	switch {
	case strings.HasSuffix(name, ".sql"), strings.HasSuffix(name, ".sql.gz"):
		return model.KindDatabase, true
	case strings.Contains(name, "files") && (strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".zip")):
		return model.KindFiles, true
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar"), strings.HasSuffix(name, ".zip"):
		return model.KindFullSystem, true
	}
	return model.KindFullSystem, false
}

// looksEncrypted checks the header is big enough to hold the encryption header and it doesn't
// look like any of the plain formats we know (compressed archives or text dumps).
func looksEncrypted(header []byte) bool {
	if len(header) < HeaderSize {
		return false
	}
	header = header[:HeaderSize]

	if bytes.HasPrefix(header, gzipMagic) || bytes.HasPrefix(header, zipMagic) {
		return false
	}

	printable, zeros := 0, 0
	for _, b := range header {
		switch {
		case b == 0:
			zeros++
		case b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b < 0x7f):
			printable++
		}
	}

	// Text dumps (SQL) and tar headers (names padded with NULs).
	if printable*10 >= len(header)*9 || zeros*4 >= len(header) {
		return false
	}

	return true
}
