package validator

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-analyzer/pkg/logger"
)

// minimalPDF writes a structurally valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func minimalDocx(t *testing.T, parts ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<xml/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newValidator() *DocumentValidator {
	return NewDocumentValidator(logger.NewTestLogger(), nil)
}

func codes(r *ValidationResult) []string {
	var out []string
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}

func TestValidPDF(t *testing.T) {
	r := newValidator().Validate("report.pdf", minimalPDF(3), 0)

	assert.True(t, r.IsValid, r.Error())
	assert.Equal(t, 3, r.FileInfo.Pages)
	assert.Equal(t, "application/pdf", r.FileInfo.MimeType)
	assert.Equal(t, "application/pdf", r.FileInfo.ContentType)
	assert.Len(t, r.FileInfo.Hash, 64)
}

func TestPDFPageLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPageCount = 2
	v := NewDocumentValidator(logger.NewTestLogger(), cfg)

	r := v.Validate("report.pdf", minimalPDF(3), 0)
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{CodeTooManyPages}, codes(r))
}

func TestCorruptPDF(t *testing.T) {
	r := newValidator().Validate("report.pdf", []byte("%PDF-1.4\nthis is not really a pdf at all"), 0)
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{CodeInvalidPDF}, codes(r))
}

func TestValidDocx(t *testing.T) {
	r := newValidator().Validate("letter.DOCX", minimalDocx(t, "[Content_Types].xml", "word/document.xml"), 0)
	assert.True(t, r.IsValid, r.Error())
	assert.Equal(t, ".docx", r.FileInfo.Extension)
}

func TestDocxWithoutMainPart(t *testing.T) {
	r := newValidator().Validate("letter.docx", minimalDocx(t, "[Content_Types].xml"), 0)
	assert.Equal(t, []string{CodeInvalidDocx}, codes(r))
}

func TestMimeMismatch(t *testing.T) {
	r := newValidator().Validate("report.pdf", []byte("plain text pretending to be a pdf"), 0)
	assert.Equal(t, []string{CodeInvalidMimeType}, codes(r))
}

func TestBasicValidation(t *testing.T) {
	v := newValidator()

	assert.Equal(t, []string{CodeInvalidFileType}, codes(v.Validate("notes.txt", []byte("hello"), 0)))
	assert.Equal(t, []string{CodeFileEmpty}, codes(v.Validate("report.pdf", []byte{}, 0)))
	assert.Equal(t, []string{CodeFileTooLarge}, codes(v.Validate("report.pdf", nil, 51*1024*1024)))
}

func TestSupported(t *testing.T) {
	v := newValidator()
	assert.True(t, v.Supported("incoming/a.pdf"))
	assert.True(t, v.Supported("B.Docx"))
	assert.False(t, v.Supported("image.png"))
	assert.False(t, v.Supported("archive"))
}
