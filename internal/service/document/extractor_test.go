package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal single-font PDF with one content stream per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, content := range pages {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtractConcatenatesPagesAndNormalizes(t *testing.T) {
	data := buildPDF(
		"BT /F1 12 Tf 72 712 Td (Hello   World) Tj T* (  second   line ) Tj ET",
		"BT /F1 12 Tf 72 712 Td (Page two) Tj ET",
	)

	doc, err := NewExtractor().Extract(context.Background(), "report.pdf", data)
	if err != nil {
		t.Fatalf("Extract err: %v", err)
	}

	if doc.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.Pages)
	}
	if doc.Name != "report.pdf" || doc.Size != int64(len(data)) {
		t.Fatalf("unexpected metadata %+v", doc)
	}
	if !strings.Contains(doc.Text, "Hello World") || !strings.Contains(doc.Text, "Page two") {
		t.Fatalf("missing page text: %q", doc.Text)
	}
	if strings.Index(doc.Text, "Hello") > strings.Index(doc.Text, "Page two") {
		t.Fatalf("pages out of order: %q", doc.Text)
	}
	// the page break becomes a single space instead of fusing words
	if !strings.Contains(doc.Text, " Page two") {
		t.Fatalf("pages not separated: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "  ") || strings.TrimSpace(doc.Text) != doc.Text {
		t.Fatalf("text not normalized: %q", doc.Text)
	}
}

func TestExtractRejectsNonPDF(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "notes.txt", []byte("just some text"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "error extracting text") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestExtractRecoversFromMalformedPDF(t *testing.T) {
	data := buildPDF("BT /F1 12 Tf (x) Tj ET")
	truncated := append([]byte(nil), data[:len(data)/2]...)
	truncated = append(truncated, []byte("\nstartxref\n999999\n%%EOF\n")...)

	if _, err := NewExtractor().Extract(context.Background(), "broken.pdf", truncated); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractEmptyUpload(t *testing.T) {
	if _, err := NewExtractor().Extract(context.Background(), "empty.pdf", nil); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}
}

func TestExtractPDFWithoutText(t *testing.T) {
	data := buildPDF("0 0 m 10 10 l S")
	if _, err := NewExtractor().Extract(context.Background(), "drawing.pdf", data); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	cases := map[string]string{
		"  leading and trailing  ":       "leading and trailing",
		"tabs\tand\nnewlines\r\n\nmixed": "tabs and newlines mixed",
		"many     spaces":                "many spaces",
		"\u00a0non-breaking\u2003em":     "non-breaking em",
		"":                               "",
		" \t\n ":                         "",
	}

	for in, want := range cases {
		if got := NormalizeWhitespace(in); got != want {
			t.Fatalf("NormalizeWhitespace(%q) = %q, want %q", in, got, want)
		}
	}
}
