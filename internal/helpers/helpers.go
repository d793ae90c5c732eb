package helpers

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// CounterWriter tracks the number of bytes written to the underlying writer.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// hostileChars are replaced by SanitizeFilename on every platform so that a
// download made on Linux can be copied to Windows unchanged.
const hostileChars = `/\:*?"<>|`

// SanitizeFilename makes s usable as a single path element. Separators, control
// characters and Windows-reserved punctuation become '_'; spaces and case are kept.
func SanitizeFilename(s string) string {
	var b strings.Builder
	replaced := false
	for _, ch := range s {
		switch {
		case ch == 0, unicode.IsControl(ch), strings.ContainsRune(hostileChars, ch):
			// Consecutive replacements collapse into a single '_'.
			if !replaced {
				b.WriteRune('_')
			}
			replaced = true
		default:
			b.WriteRune(ch)
			replaced = false
		}
	}
	return strings.Trim(b.String(), ". ")
}

// ShortKey derives a compact, stable key from s (first 16 bytes of its BLAKE3 digest).
func ShortKey(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
