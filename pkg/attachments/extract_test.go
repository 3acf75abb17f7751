package attachments

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	godocx "github.com/gomutex/godocx"
	"github.com/xuri/excelize/v2"
)

func TestExtractTextPlain(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(filePath, []byte("hello\nworld"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := extractText(filePath, docTypePlainText, 0)
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if text != "hello\nworld" {
		t.Fatalf("text = %q, want %q", text, "hello\nworld")
	}
}

func TestExtractTextDOCX(t *testing.T) {
	filePath := createDOCXFixture(t, "sample.docx", []string{"Hello", "DOCX"})

	text, err := extractText(filePath, docTypeDOCX, 0)
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if text != "Hello\nDOCX" {
		t.Fatalf("text = %q, want %q", text, "Hello\nDOCX")
	}
}

func TestExtractTextXLSX(t *testing.T) {
	filePath := createXLSXFixture(t, "sample.xlsx", []xlsxSheetFixture{
		{Name: "Sheet1", Cells: map[string]any{"A1": "name", "B1": "Alice"}},
	})

	text, err := extractText(filePath, docTypeXLSX, 0)
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if !strings.Contains(text, "[sheet: Sheet1]") ||
		!strings.Contains(text, "A1=name") ||
		!strings.Contains(text, "B1=Alice") {
		t.Fatalf("text = %q, want contains parsed cells", text)
	}
}

func TestExtractTextXLSXMultiSheet(t *testing.T) {
	filePath := createXLSXFixture(t, "multi.xlsx", []xlsxSheetFixture{
		{Name: "Sheet1", Cells: map[string]any{"A1": "name", "B1": "Alice"}},
		{Name: "Data", Cells: map[string]any{"A1": "city", "B1": "Shenzhen"}},
	})

	text, err := extractText(filePath, docTypeXLSX, 0)
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if !strings.Contains(text, "[sheet: Sheet1]") || !strings.Contains(text, "[sheet: Data]") {
		t.Fatalf("text = %q, want contains all sheet headers", text)
	}
}

func TestExtractTextPDFMalformedReturnsError(t *testing.T) {
	// Hand-crafted PDFs without xref tables are rejected by ledongthuc/pdf.
	dir := t.TempDir()
	filePath := filepath.Join(dir, "sample.pdf")
	pdfContent := "%PDF-1.4\n1 0 obj\n<<>>\nstream\nBT\n(Hello PDF) Tj\nET\nendstream\nendobj\n%%EOF"
	if err := os.WriteFile(filePath, []byte(pdfContent), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := extractText(filePath, docTypePDF, 0); err == nil {
		t.Fatal("expected an error for a malformed PDF")
	}
}

func TestExtractTextRespectsMaxTextChars(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "long.txt")
	if err := os.WriteFile(filePath, []byte(strings.Repeat("A", 240)), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := extractText(filePath, docTypePlainText, 10); err == nil {
		t.Fatal("expected an error when text exceeds the character limit")
	}
	text, err := extractText(filePath, docTypePlainText, 300)
	if err != nil {
		t.Fatalf("extractText() with large limit failed: %v", err)
	}
	if len(text) != 240 {
		t.Fatalf("len(text) = %d, want 240", len(text))
	}
}

func TestExtractTextDOCXParseFailed(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "broken.docx")
	if err := os.WriteFile(filePath, []byte("not a valid docx"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := extractText(filePath, docTypeDOCX, 0); err == nil {
		t.Fatal("expected an error for a corrupt docx")
	}
}

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		mediaType string
		ext       string
		want      documentType
	}{
		{"text/plain", ".txt", docTypePlainText},
		{"", ".md", docTypePlainText},
		{"application/pdf", ".pdf", docTypePDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx", docTypeDOCX},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx", docTypeXLSX},
		{"application/zip", ".zip", docTypeUnsupported},
		{"image/png", ".png", docTypeUnsupported},
	}

	for _, tt := range tests {
		if got := detectDocumentType(tt.mediaType, tt.ext); got != tt.want {
			t.Errorf("detectDocumentType(%q, %q) = %q, want %q", tt.mediaType, tt.ext, got, tt.want)
		}
	}
}

func createDOCXFixture(t *testing.T, name string, paragraphs []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	document, err := godocx.NewDocument()
	if err != nil {
		t.Fatal(err)
	}
	for _, paragraph := range paragraphs {
		document.AddParagraph(paragraph)
	}
	if err := document.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	return path
}

type xlsxSheetFixture struct {
	Name  string
	Cells map[string]any
}

func createXLSXFixture(t *testing.T, name string, sheets []xlsxSheetFixture) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	workbook := excelize.NewFile()
	defer func() {
		_ = workbook.Close()
	}()

	defaultSheet := workbook.GetSheetName(workbook.GetActiveSheetIndex())
	for index, sheet := range sheets {
		if sheet.Name == "" {
			t.Fatal("sheet name cannot be empty")
		}

		targetSheet := sheet.Name
		switch {
		case index == 0 && defaultSheet != targetSheet:
			if err := workbook.SetSheetName(defaultSheet, targetSheet); err != nil {
				t.Fatal(err)
			}
		case index > 0:
			if _, err := workbook.NewSheet(targetSheet); err != nil {
				t.Fatal(err)
			}
		}

		for cellRef, value := range sheet.Cells {
			if err := workbook.SetCellValue(targetSheet, cellRef, value); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := workbook.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestExtractPDFTextMalformedPDF(t *testing.T) {
	// A hand-crafted PDF with invalid compressed data and no xref table
	// should produce an error, not a panic.
	dir := t.TempDir()
	filePath := filepath.Join(dir, "bad.pdf")
	content := "%PDF-1.4\n1 0 obj\n<< /Filter /FlateDecode >>\nstream\nnot valid zlib\nendstream\nendobj\n%%EOF"
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := extractPDFText(filePath, defaultMaxTextChars); err == nil {
		t.Fatal("expected an error for a malformed PDF")
	}
}

func TestExtractPDFTextInvalidFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "not-a-pdf.pdf")
	if err := os.WriteFile(filePath, []byte("this is not a PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := extractPDFText(filePath, defaultMaxTextChars); err == nil {
		t.Fatal("expected error for non-PDF file")
	}
}

func TestExtractPDFTextNonexistentFile(t *testing.T) {
	_, err := extractPDFText("/tmp/nonexistent-pdf-test-file.pdf", defaultMaxTextChars)
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestExtractPDFTextRespectsMaxTextChars(t *testing.T) {
	filePath := createPDFFixture(t, "long.pdf", strings.Repeat("A", 240))

	shortText, err := extractPDFText(filePath, 10)
	if err != nil {
		t.Fatalf("extractPDFText() with short limit failed: %v", err)
	}
	longText, err := extractPDFText(filePath, 200)
	if err != nil {
		t.Fatalf("extractPDFText() with long limit failed: %v", err)
	}

	if len(shortText) >= len(longText) {
		t.Fatalf("expected short-limit text to be smaller, got short=%d long=%d", len(shortText), len(longText))
	}
	if len(shortText) > 40 {
		t.Fatalf("short-limit text too long: got %d, want <= 40", len(shortText))
	}
}

func createPDFFixture(t *testing.T, name string, text string) string {
	t.Helper()

	var buf bytes.Buffer
	offsets := make([]int, 6)

	write := func(s string) {
		_, _ = buf.WriteString(s)
	}

	write("%PDF-1.4\n")

	offsets[1] = buf.Len()
	write("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = buf.Len()
	write("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = buf.Len()
	write(
		"3 0 obj\n" +
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
			"/Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\n" +
			"endobj\n",
	)

	content := "BT\n/F1 12 Tf\n72 720 Td\n(" + escapePDFText(text) + ") Tj\nET\n"
	offsets[4] = buf.Len()
	write(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n", len(content), content))

	offsets[5] = buf.Len()
	write("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	startXRef := buf.Len()
	write("xref\n0 6\n")
	write("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		write(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	write("trailer\n<< /Size 6 /Root 1 0 R >>\n")
	write(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", startXRef))

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func escapePDFText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, ")", "\\)")
	return text
}
