package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func Test_Extract_PlainTextPassthrough(t *testing.T) {
	t.Parallel()
	got, err := Extract("notes.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "hello world" {
		t.Errorf("want %q, got %q", "hello world", got)
	}
}

func Test_Extract_MarkdownPassthrough(t *testing.T) {
	t.Parallel()
	src := "# Title\n\nSome *markdown* content."
	got, err := Extract("README.md", []byte(src))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != src {
		t.Errorf("markdown must pass through unchanged, got %q", got)
	}
}

func Test_Extract_NormalizesLineEndings(t *testing.T) {
	t.Parallel()
	got, err := Extract("dos.txt", []byte("line one\r\nline two\rline three"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "line one\nline two\nline three" {
		t.Errorf("line endings not normalized: %q", got)
	}
}

func Test_Extract_InvalidUTF8Rejected(t *testing.T) {
	t.Parallel()
	_, err := Extract("bad.txt", []byte{0xff, 0xfe, 0xfd})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got %v", err)
	}
	if fe.Format != "txt" {
		t.Errorf("want format txt, got %q", fe.Format)
	}
}

func Test_Extract_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	_, err := Extract("image.png", []byte{0x89, 0x50, 0x4e, 0x47})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got %v", err)
	}
}

func Test_Extract_CorruptPDF(t *testing.T) {
	t.Parallel()
	// Valid magic but truncated body — the parser must fail, not succeed.
	_, err := Extract("broken.pdf", []byte("%PDF-1.4 garbage"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError for corrupt PDF, got %v", err)
	}
}

func Test_Extract_Docx(t *testing.T) {
	t.Parallel()
	data := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	got, err := Extract("doc.docx", data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}

func Test_Extract_DocxMissingDocumentXML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/other.xml")
	_, _ = w.Write([]byte("<x/>"))
	_ = zw.Close()

	_, err := Extract("doc.docx", buf.Bytes())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got %v", err)
	}
}

func Test_Extract_DocxNotAZip(t *testing.T) {
	t.Parallel()
	_, err := Extract("doc.docx", []byte("this is not a zip archive"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FormatError, got %v", err)
	}
}

func Test_Supported(t *testing.T) {
	t.Parallel()
	cases := []struct {
		filename string
		want     bool
	}{
		{"a.txt", true},
		{"a.md", true},
		{"a.MARKDOWN", true},
		{"a.pdf", true},
		{"a.docx", true},
		{"a.png", false},
		{"a", false},
		{"archive.tar.gz", false},
	}
	for _, tc := range cases {
		if got := Supported(tc.filename); got != tc.want {
			t.Errorf("Supported(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}

// buildDocx assembles a minimal docx container holding the given document XML.
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
