package content

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CourseID derives a stable identifier from a course context. Case, Unicode
// form and whitespace differences do not change the result.
func CourseID(c CourseContext) string {
	fold := cases.Fold()
	canon := func(s string) string {
		s = norm.NFKC.String(s)
		return strings.Join(strings.Fields(fold.String(s)), " ")
	}

	h, _ := blake2b.New256(nil)
	for _, part := range []string{c.Subject, c.Topic, c.Description} {
		h.Write([]byte(canon(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
