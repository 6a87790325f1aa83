package packer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func newTestPacker() *Packer {
	return New(1<<20, 4<<20)
}

func zipOf(t *testing.T, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestPackFilesKeepsUploadOrder(t *testing.T) {
	files := []File{
		{Name: "b.tf", Data: []byte("resource b")},
		{Name: "a.tf", Data: []byte("resource a")},
	}

	res, err := newTestPacker().PackFiles(files)
	if err != nil {
		t.Fatalf("PackFiles returned error: %v", err)
	}

	for _, want := range []string{"File: a.tf", "File: b.tf", "resource a", "resource b"} {
		if !strings.Contains(res.Packed, want) {
			t.Errorf("packed text missing %q", want)
		}
	}
	if strings.Index(res.Packed, "resource b") > strings.Index(res.Packed, "resource a") {
		t.Errorf("files not packed in upload order")
	}
	if res.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", res.FileCount)
	}
	if res.TokenCount != EstimateTokens(res.Packed) {
		t.Errorf("TokenCount = %d, want %d", res.TokenCount, EstimateTokens(res.Packed))
	}
}

func TestPackFilesIsReproducible(t *testing.T) {
	files := []File{
		{Name: "a.tf", Data: []byte("resource a")},
		{Name: "b.tf", Data: []byte("resource b")},
	}

	first, err := newTestPacker().PackFiles(files)
	if err != nil {
		t.Fatalf("PackFiles returned error: %v", err)
	}
	second, err := newTestPacker().PackFiles(files)
	if err != nil {
		t.Fatalf("PackFiles returned error: %v", err)
	}

	if first.Packed != second.Packed || first.TokenCount != second.TokenCount {
		t.Errorf("packing the same input twice produced different output")
	}
}

func TestPackFilesOriginalIsArchive(t *testing.T) {
	files := []File{
		{Name: "modules/vpc/main.tf", Data: []byte("module vpc")},
		{Name: "main.tf", Data: []byte("module root")},
	}

	res, err := newTestPacker().PackFiles(files)
	if err != nil {
		t.Fatalf("PackFiles returned error: %v", err)
	}

	repacked, err := newTestPacker().PackArchive(res.Original)
	if err != nil {
		t.Fatalf("PackArchive(original) returned error: %v", err)
	}
	if repacked.Packed != res.Packed {
		t.Errorf("packing the synthesized archive differs from packing the files")
	}
}

func TestPackFilesNonASCIISource(t *testing.T) {
	ru := "# Сервер базы данных для продакшена\nresource \"aws_db_instance\" \"основная\" {}\n"
	cjk := "# 生产环境的数据库服务器配置\nresource \"aws_db_instance\" \"main\" {}\n"

	res, err := newTestPacker().PackArchive(zipOf(t,
		File{Name: "ru.tf", Data: []byte(ru)},
		File{Name: "cjk.tf", Data: []byte(cjk)},
	))
	if err != nil {
		t.Fatalf("PackArchive returned error: %v", err)
	}

	for _, want := range []string{ru, cjk} {
		if !strings.Contains(res.Packed, want) {
			t.Errorf("packed text missing %q:\n%s", want, res.Packed)
		}
	}
	if strings.Contains(res.Packed, "[binary content omitted") {
		t.Errorf("non-ASCII source marked as binary:\n%s", res.Packed)
	}
}

func TestPackArchive(t *testing.T) {
	data := zipOf(t,
		File{Name: "infra/", Data: nil},
		File{Name: "infra/template.yaml", Data: []byte("Resources:\n  Bucket:\n    Type: AWS::S3::Bucket\n")},
		File{Name: "__MACOSX/infra/._template.yaml", Data: []byte{0x00, 0x05}},
		File{Name: "infra/.DS_Store", Data: []byte{0x00, 0x00}},
		File{Name: "infra/diagram.png", Data: []byte{0x89, 'P', 'N', 'G', 0x00, 0x00}},
	)

	res, err := newTestPacker().PackArchive(data)
	if err != nil {
		t.Fatalf("PackArchive returned error: %v", err)
	}

	if res.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", res.FileCount)
	}
	if !bytes.Equal(res.Original, data) {
		t.Errorf("Original is not the uploaded archive")
	}
	if !strings.Contains(res.Packed, "    Type: AWS::S3::Bucket") {
		t.Errorf("YAML indentation not preserved:\n%s", res.Packed)
	}
	if !strings.Contains(res.Packed, "File: infra/diagram.png") || !strings.Contains(res.Packed, "[binary content omitted") {
		t.Errorf("binary entry not marked:\n%s", res.Packed)
	}
	if strings.Contains(res.Packed, "__MACOSX") || strings.Contains(res.Packed, ".DS_Store") {
		t.Errorf("ignored entries leaked into packed text")
	}
}

func TestPackErrors(t *testing.T) {
	p := New(16, 24)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"no files", func() error { _, err := p.PackFiles(nil); return err }, ErrEmpty},
		{"empty archive bytes", func() error { _, err := p.PackArchive(nil); return err }, ErrEmpty},
		{"archive of directories", func() error {
			_, err := p.PackArchive(zipOf(t, File{Name: "only/"}))
			return err
		}, ErrEmpty},
		{"not an archive", func() error { _, err := p.PackArchive([]byte("PK? no")); return err }, ErrCorrupt},
		{"oversized file", func() error {
			_, err := p.PackFiles([]File{{Name: "big.tf", Data: bytes.Repeat([]byte("x"), 17)}})
			return err
		}, ErrTooLarge},
		{"oversized entry", func() error {
			_, err := p.PackArchive(zipOf(t, File{Name: "big.tf", Data: bytes.Repeat([]byte("x"), 17)}))
			return err
		}, ErrTooLarge},
		{"total too large", func() error {
			_, err := p.PackFiles([]File{
				{Name: "a.tf", Data: bytes.Repeat([]byte("a"), 16)},
				{Name: "b.tf", Data: bytes.Repeat([]byte("b"), 16)},
			})
			return err
		}, ErrTooLarge},
		{"duplicate names", func() error {
			_, err := p.PackFiles([]File{{Name: "a.tf"}, {Name: "./a.tf"}})
			return err
		}, ErrBadPath},
		{"parent traversal", func() error {
			_, err := p.PackFiles([]File{{Name: "../etc/passwd", Data: []byte("x")}})
			return err
		}, ErrBadPath},
		{"corrupt pdf entry", func() error {
			_, err := p.PackFiles([]File{{Name: "doc.pdf", Data: []byte("not a pdf")}})
			return err
		}, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPackArchiveCorruptEntry(t *testing.T) {
	data := zipOf(t, File{Name: "main.tf", Data: bytes.Repeat([]byte("resource \"x\" \"y\" {}\n"), 10)})

	// Flip a byte inside the stored entry body so the checksum fails.
	idx := bytes.Index(data, []byte("main.tf")) + len("main.tf") + 2
	corrupt := append([]byte(nil), data...)
	corrupt[idx] ^= 0xFF

	if _, err := newTestPacker().PackArchive(corrupt); !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}
