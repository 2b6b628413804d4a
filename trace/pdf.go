package trace

import (
	"fmt"
	"io"
	"regexp"

	"github.com/ledongthuc/pdf"
)

var labelPattern = regexp.MustCompile(CodePrefix + `([0-9A-F]{12})`)

// FindCode returns the first traceability code in text.
func FindCode(text string) (string, bool) {
	m := labelPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractFromPDF searches the text layer of a rendered PDF for the printed
// traceability code. The full record is available from the Registry.
func ExtractFromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read text from %s: %w", path, err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("failed to read text from %s: %w", path, err)
	}
	code, ok := FindCode(string(b))
	if !ok {
		return "", fmt.Errorf("no traceability code in %s", path)
	}
	return code, nil
}
