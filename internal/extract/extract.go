// Package extract normalizes heterogeneous document formats into plain UTF-8
// text for chunking and embedding. Plain text and markdown pass through
// unchanged; PDF and word-processor extraction is best-effort and lossy
// (tables, images, and layout are dropped).
//
// A failed extraction returns a *FormatError so callers can skip the document
// and continue a multi-document batch.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// FormatError indicates corrupt or unsupported document input.
// It is a per-document condition: ingestion logs it and moves on to the
// next document rather than aborting the batch.
type FormatError struct {
	// Filename is the document that failed to extract.
	Filename string
	// Format is the declared format (file extension without the dot).
	Format string
	// Err is the underlying cause, nil for unsupported formats.
	Err error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s (%s): %v", e.Filename, e.Format, e.Err)
	}
	return fmt.Sprintf("extract: %s: unsupported format %q", e.Filename, e.Format)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *FormatError) Unwrap() error { return e.Err }

// Supported reports whether the given filename has an extension this package
// can extract. Used by the ingestion orchestrator to filter folder listings.
func Supported(filename string) bool {
	switch normalizedExt(filename) {
	case "txt", "md", "markdown", "pdf", "docx":
		return true
	}
	return false
}

// Extract converts raw document bytes into normalized UTF-8 text.
// The format is selected by the filename extension. Corrupt or unsupported
// input returns a *FormatError.
func Extract(filename string, data []byte) (string, error) {
	ext := normalizedExt(filename)
	switch ext {
	case "txt", "md", "markdown":
		return extractText(filename, ext, data)
	case "pdf":
		return extractPDF(filename, data)
	case "docx":
		return extractDocx(filename, data)
	default:
		return "", &FormatError{Filename: filename, Format: ext}
	}
}

// normalizedExt returns the lowercase filename extension without the dot.
func normalizedExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// extractText validates and passes through plain text / markdown content.
// Line endings are normalized to \n; the text is otherwise untouched.
func extractText(filename, ext string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", &FormatError{Filename: filename, Format: ext, Err: fmt.Errorf("invalid UTF-8")}
	}
	s := string(data)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s, nil
}

// extractPDF pulls the plain text stream out of a PDF document.
// The underlying parser panics on some malformed inputs, so the call is
// fenced with a recover that converts the panic into a *FormatError.
func extractPDF(filename string, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &FormatError{Filename: filename, Format: "pdf", Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &FormatError{Filename: filename, Format: "pdf", Err: err}
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &FormatError{Filename: filename, Format: "pdf", Err: err}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", &FormatError{Filename: filename, Format: "pdf", Err: err}
	}

	return buf.String(), nil
}

// extractDocx unpacks the docx container (a zip archive) and extracts the
// text runs from word/document.xml. Styling, tables, and embedded media are
// dropped; each paragraph becomes one line of output.
func extractDocx(filename string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &FormatError{Filename: filename, Format: "docx", Err: err}
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", &FormatError{Filename: filename, Format: "docx", Err: err}
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", &FormatError{Filename: filename, Format: "docx", Err: err}
		}
		break
	}
	if docXML == nil {
		return "", &FormatError{Filename: filename, Format: "docx", Err: fmt.Errorf("word/document.xml not found")}
	}

	paragraphs, err := docxParagraphs(docXML)
	if err != nil {
		return "", &FormatError{Filename: filename, Format: "docx", Err: err}
	}

	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs walks the WordprocessingML token stream and collects the
// character data of every w:t element, grouped by enclosing w:p paragraph.
// Token-level decoding avoids committing to the full (namespaced, versioned)
// schema — only the p/t structure matters here.
func docxParagraphs(docXML []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []string
	var current strings.Builder
	inParagraph := false
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inParagraph {
					paragraphs = append(paragraphs, current.String())
				}
				inParagraph = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inParagraph && inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}
