package runner

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/slok/restorewatch/internal/model"
)

// Format is the container format of an unpacked artifact.
type Format string

const (
	FormatSQL Format = "sql"
	FormatTar Format = "tar"
	FormatZip Format = "zip"
)

// Entry is a single restorable unit of an artifact: a SQL statement or an archived file.
type Entry struct {
	Name     string
	Size     int64
	Database bool
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicZip  = []byte("PK\x03\x04")
)

// unpack removes the outer compression layer of src into dir and detects the container format.
func unpack(ctx context.Context, src, dir string) (string, Format, error) {
	head, err := readHead(src, 512)
	if err != nil {
		return "", "", err
	}

	path := src
	switch {
	case bytes.HasPrefix(head, magicGzip):
		path = filepath.Join(dir, "unpacked")
		if err := decompressFile(ctx, src, path, func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}); err != nil {
			return "", "", fmt.Errorf("could not decompress gzip: %w", err)
		}
	case bytes.HasPrefix(head, magicZstd):
		path = filepath.Join(dir, "unpacked")
		if err := decompressFile(ctx, src, path, func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		}); err != nil {
			return "", "", fmt.Errorf("could not decompress zstd: %w", err)
		}
	}

	if path != src {
		if head, err = readHead(path, 512); err != nil {
			return "", "", err
		}
	}

	switch {
	case bytes.HasPrefix(head, magicZip):
		return path, FormatZip, nil
	case len(head) >= 262 && string(head[257:262]) == "ustar":
		return path, FormatTar, nil
	case isText(head):
		return path, FormatSQL, nil
	}

	return "", "", fmt.Errorf("unrecognized artifact format: %w", model.ErrNotValid)
}

// isText returns true when the head has no control bytes other than whitespace.
func isText(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	for _, b := range head {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not read artifact: %w", err)
	}
	return buf[:read], nil
}

func decompressFile(ctx context.Context, src, dst string, newReader func(io.Reader) (io.ReadCloser, error)) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	r, err := newReader(bufio.NewReader(in))
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: r}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// walk calls fn for every entry of the unpacked artifact in order.
func walk(ctx context.Context, path string, f Format, fn func(e Entry, r io.Reader) error) error {
	switch f {
	case FormatSQL:
		return walkSQL(ctx, path, fn)
	case FormatTar:
		return walkTar(ctx, path, fn)
	case FormatZip:
		return walkZip(ctx, path, fn)
	}
	return fmt.Errorf("unknown format %q: %w", f, model.ErrNotValid)
}

func walkSQL(ctx context.Context, path string, fn func(e Entry, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	return walkStatements(ctx, f, "", fn)
}

// walkStatements splits a SQL dump in statements terminated by a semicolon at the end of a line.
func walkStatements(ctx context.Context, r io.Reader, prefix string, fn func(e Entry, r io.Reader) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		stmt strings.Builder
		n    int
	)
	flush := func() error {
		s := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if s == "" {
			return nil
		}
		n++
		return fn(Entry{Name: fmt.Sprintf("%sstatement %d", prefix, n), Size: int64(len(s)), Database: true}, strings.NewReader(s))
	}

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if stmt.Len() == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		stmt.WriteString(line)
		stmt.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("could not read sql dump: %w", err)
	}

	return flush()
}

func walkTar(ctx context.Context, path string, fn func(e Entry, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read tar entry: %w", err)
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(Entry{Name: h.Name, Size: h.Size, Database: isSQLName(h.Name)}, tr); err != nil {
			return err
		}
	}
}

func walkZip(ctx context.Context, path string, fn func(e Entry, r io.Reader) error) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("could not open zip: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("could not open zip entry %s: %w", zf.Name, err)
		}
		err = fn(Entry{Name: zf.Name, Size: int64(zf.UncompressedSize64), Database: isSQLName(zf.Name)}, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func isSQLName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".sql")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
