package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// Document number prefixes. Numbers look like INV-2025-0007 and QUO-2025-0103.
const (
	InvoiceNumberPrefix = "INV"
	QuoteNumberPrefix   = "QUO"
)

var documentNumberPattern = regexp.MustCompile(`^(INV|QUO)-(\d{4})-(\d{4,})$`)

// FormatDocumentNumber builds a document number from prefix, year and sequence.
// The sequence is zero-padded to four digits but grows beyond that when needed.
func FormatDocumentNumber(prefix string, year int, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// ParseDocumentNumber extracts year and sequence from a document number.
// Returns ok=false when the value does not follow the expected pattern.
func ParseDocumentNumber(number string) (prefix string, year int, seq int, ok bool) {
	m := documentNumberPattern.FindStringSubmatch(number)
	if m == nil {
		return "", 0, 0, false
	}
	year, _ = strconv.Atoi(m[2])
	seq, _ = strconv.Atoi(m[3])
	return m[1], year, seq, true
}
