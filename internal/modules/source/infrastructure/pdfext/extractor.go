package pdfext

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

var ErrNoExtractableText = errors.New("pdf contains no extractable text")

// Extractor 提取 PDF 纯文本
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}

	text := collapseWhitespace(buf.String())
	if text == "" {
		return "", ErrNoExtractableText
	}
	return text, nil
}

// collapseWhitespace 把连续空白折叠成单个空格，保留段落换行
func collapseWhitespace(s string) string {
	var sb strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == '\n' {
			sb.WriteRune('\n')
			lastSpace = false
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				sb.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		sb.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(sb.String())
}
