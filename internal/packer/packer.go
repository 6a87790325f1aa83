// Package packer turns multi-file and archive uploads into one packed text
// artifact with a token estimate.
package packer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/BerylCAtieno/iac-workitem-api/internal/extractor"
)

var (
	ErrEmpty    = errors.New("no files to pack")
	ErrCorrupt  = errors.New("archive is corrupt or unreadable")
	ErrTooLarge = errors.New("content exceeds size limit")
	ErrBadPath  = errors.New("invalid file path")
)

const separator = "================================================================"

// File is one uploaded file. Name is its path relative to the upload root.
type File struct {
	Name string
	Data []byte
}

// Result is the outcome of packing an upload.
type Result struct {
	// Original is the archive stored as the upload's original content.
	Original   []byte
	Packed     string
	TokenCount int
	FileCount  int
}

type Packer struct {
	maxFileSize  int64
	maxTotalSize int64
}

func New(maxFileSize, maxTotalSize int64) *Packer {
	return &Packer{
		maxFileSize:  maxFileSize,
		maxTotalSize: maxTotalSize,
	}
}

// PackFiles synthesizes an archive from files and packs them in the given
// order.
func (p *Packer) PackFiles(files []File) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrEmpty
	}

	entries := make([]File, 0, len(files))
	seen := make(map[string]bool, len(files))
	var total int64

	for _, f := range files {
		name, err := cleanPath(f.Name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate file %q", ErrBadPath, name)
		}
		seen[name] = true

		if err := p.checkSize(name, int64(len(f.Data)), &total); err != nil {
			return nil, err
		}
		entries = append(entries, File{Name: name, Data: f.Data})
	}

	original, err := buildArchive(entries)
	if err != nil {
		return nil, err
	}

	return p.pack(original, entries)
}

// PackArchive reads every entry of a ZIP archive in archive order and packs
// them. The archive itself is kept as the original content.
func (p *Packer) PackArchive(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var entries []File
	var total int64

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || ignored(zf.Name) {
			continue
		}

		name, err := cleanPath(zf.Name)
		if err != nil {
			return nil, err
		}

		if err := p.checkSize(name, int64(zf.UncompressedSize64), &total); err != nil {
			return nil, err
		}

		content, err := p.readEntry(zf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, File{Name: name, Data: content})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: archive contains no files", ErrEmpty)
	}

	return p.pack(data, entries)
}

func (p *Packer) readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, zf.Name, err)
	}
	defer rc.Close()

	// Header sizes can lie, so the read itself is bounded too.
	content, err := io.ReadAll(io.LimitReader(rc, p.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, zf.Name, err)
	}
	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %s is larger than %s", ErrTooLarge, zf.Name, humanize.IBytes(uint64(p.maxFileSize)))
	}

	return content, nil
}

func (p *Packer) checkSize(name string, size int64, total *int64) error {
	if size > p.maxFileSize {
		return fmt.Errorf("%w: %s is %s, limit is %s", ErrTooLarge, name,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.maxFileSize)))
	}
	*total += size
	if *total > p.maxTotalSize {
		return fmt.Errorf("%w: upload expands beyond %s", ErrTooLarge, humanize.IBytes(uint64(p.maxTotalSize)))
	}
	return nil
}

func (p *Packer) pack(original []byte, entries []File) (*Result, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "This file is a merged representation of %d files.\n", len(entries))
	b.WriteString("Each file begins with a header naming its path relative to the upload root.\n\n")
	b.WriteString(separator + "\nDirectory Structure\n" + separator + "\n")
	for _, e := range entries {
		b.WriteString(e.Name)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, e := range entries {
		text, kind, err := extractor.Extract(e.Name, e.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, e.Name, err)
		}

		b.WriteString(separator + "\nFile: " + e.Name + "\n" + separator + "\n")
		if kind == extractor.KindBinary {
			fmt.Fprintf(&b, "[binary content omitted, %s]\n\n", humanize.IBytes(uint64(len(e.Data))))
			continue
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	packed := b.String()
	return &Result{
		Original:   original,
		Packed:     packed,
		TokenCount: EstimateTokens(packed),
		FileCount:  len(entries),
	}, nil
}

func buildArchive(entries []File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

func cleanPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadPath, name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrBadPath, name)
	}
	return cleaned, nil
}

func ignored(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store"
}
