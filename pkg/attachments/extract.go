package attachments

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	godocx "github.com/gomutex/godocx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

const defaultMaxTextChars = 60000

// documentType is the subset of FileAttachment media types this store can
// extract inlineable text from, for engines that advertise the DOCUMENT
// capability but no native file upload (spec §4.1, supplemented per
// provider_capability.py's DOCUMENT flag in the original).
type documentType string

const (
	docTypeUnsupported documentType = ""
	docTypePlainText   documentType = "plain_text"
	docTypePDF         documentType = "pdf"
	docTypeDOCX        documentType = "docx"
	docTypeXLSX        documentType = "xlsx"
)

func detectDocumentType(mediaType, ext string) documentType {
	if strings.HasPrefix(mediaType, "text/") {
		return docTypePlainText
	}

	switch ext {
	case ".txt", ".md", ".csv", ".log":
		return docTypePlainText
	case ".pdf":
		return docTypePDF
	case ".docx":
		return docTypeDOCX
	case ".xlsx":
		return docTypeXLSX
	}

	switch mediaType {
	case "application/pdf":
		return docTypePDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return docTypeDOCX
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return docTypeXLSX
	}

	return docTypeUnsupported
}

// extractText dispatches to the format-specific extractor and returns an
// error when the normalised text is longer than maxTextChars runes (0
// selects the default limit); the text is never truncated.
func extractText(path string, docType documentType, maxTextChars int) (string, error) {
	if maxTextChars <= 0 {
		maxTextChars = defaultMaxTextChars
	}

	var text string
	var err error
	switch docType {
	case docTypePlainText:
		text, err = extractPlainText(path)
	case docTypePDF:
		text, err = extractPDFText(path, maxTextChars)
	case docTypeDOCX:
		text, err = extractDOCXText(path)
	case docTypeXLSX:
		text, err = extractXLSXText(path)
	default:
		return "", fmt.Errorf("unsupported document type for text extraction")
	}
	if err != nil {
		return "", err
	}

	text = normalizeText(text)
	if utf8.RuneCountInString(text) > maxTextChars {
		return "", fmt.Errorf("extracted text exceeds %d character limit", maxTextChars)
	}
	return text, nil
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeTextBytes(data), nil
}

// extractPDFText uses github.com/ledongthuc/pdf to extract text, handling
// the CIDFont + ToUnicode CMap encodings common in non-Latin PDFs.
func extractPDFText(path string, maxTextChars int) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	// *4 for UTF-8 worst case per rune, to cap memory use while still
	// reading enough bytes to satisfy the character limit check above.
	limited := io.LimitReader(plainText, int64(maxTextChars)*4)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(limited); err != nil {
		return "", err
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text found in PDF")
	}
	return text, nil
}

func extractDOCXText(path string) (string, error) {
	document, err := godocx.OpenDocument(path)
	if err != nil {
		return "", err
	}

	if document.Document == nil || document.Document.Body == nil {
		return "", fmt.Errorf("document body not found")
	}

	var out strings.Builder
	for _, child := range document.Document.Body.Children {
		if child.Para == nil {
			continue
		}
		appendParagraphText(&out, child.Para.GetCT().Children)
		appendNewline(&out)
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text found in document")
	}
	return text, nil
}

func extractXLSXText(path string) (string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = workbook.Close()
	}()

	sheetNames := workbook.GetSheetList()
	if len(sheetNames) == 0 {
		return "", fmt.Errorf("worksheets not found")
	}

	var out strings.Builder
	for index, sheet := range sheetNames {
		if index > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString("[sheet: ")
		out.WriteString(sheet)
		out.WriteString("]\n")

		rows, readErr := workbook.GetRows(sheet)
		if readErr != nil {
			return "", readErr
		}

		for rowIndex, row := range rows {
			parts := make([]string, 0, len(row))
			for colIndex, cellValue := range row {
				cellValue = strings.TrimSpace(cellValue)
				if cellValue == "" {
					continue
				}

				label, labelErr := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
				if labelErr != nil {
					return "", labelErr
				}
				parts = append(parts, label+"="+cellValue)
			}

			if len(parts) > 0 {
				out.WriteString(strings.Join(parts, "\t"))
				out.WriteByte('\n')
			}
		}
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no extractable text found in workbook")
	}
	return text, nil
}

func decodeTextBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	if len(data) >= 2 {
		if data[0] == 0xFE && data[1] == 0xFF {
			return decodeUTF16(data[2:], true)
		}
		if data[0] == 0xFF && data[1] == 0xFE {
			return decodeUTF16(data[2:], false)
		}
	}

	if looksLikeUTF16(data) {
		return decodeUTF16(data, true)
	}

	if utf8.Valid(data) {
		return string(data)
	}

	return string(bytes.ToValidUTF8(data, []byte("�")))
}

func looksLikeUTF16(data []byte) bool {
	if len(data) < 4 {
		return false
	}

	zeroCount := 0
	sample := len(data)
	if sample > 200 {
		sample = 200
	}
	for index := 1; index < sample; index += 2 {
		if data[index] == 0 {
			zeroCount++
		}
	}

	return zeroCount > sample/8
}

func decodeUTF16(data []byte, bigEndian bool) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return ""
	}

	words := make([]uint16, 0, len(data)/2)
	for index := 0; index+1 < len(data); index += 2 {
		if bigEndian {
			words = append(words, uint16(data[index])<<8|uint16(data[index+1]))
		} else {
			words = append(words, uint16(data[index+1])<<8|uint16(data[index]))
		}
	}

	return string(utf16.Decode(words))
}

func appendParagraphText(builder *strings.Builder, children []ctypes.ParagraphChild) {
	for _, child := range children {
		if child.Run != nil {
			for _, runChild := range child.Run.Children {
				switch {
				case runChild.Text != nil:
					builder.WriteString(runChild.Text.Text)
				case runChild.DelText != nil:
					builder.WriteString(runChild.DelText.Text)
				case runChild.Tab != nil:
					builder.WriteByte('\t')
				case runChild.Break != nil || runChild.CarrRtn != nil:
					appendNewline(builder)
				}
			}
		}

		if child.Link != nil {
			appendParagraphText(builder, child.Link.Children)
		}
	}
}

func appendNewline(builder *strings.Builder) {
	if builder.Len() == 0 {
		return
	}
	current := builder.String()
	if strings.HasSuffix(current, "\n") {
		return
	}
	builder.WriteByte('\n')
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	out := make([]string, 0, len(lines))
	blankCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blankCount++
			if blankCount > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blankCount = 0
		out = append(out, trimmed)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
