package serial

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultReceiptPrefix = "DCTREC"
	DefaultStudentPrefix = "DCT"
)

// Generator issues the human-facing identifiers stamped on registrations and
// ledger entries. Values are random within a year so callers must retry on a
// unique-key collision.
type Generator struct {
	ReceiptPrefix string
	StudentPrefix string
	Now           func() time.Time
}

func NewGenerator(receiptPrefix string) *Generator {
	if receiptPrefix == "" {
		receiptPrefix = DefaultReceiptPrefix
	}
	return &Generator{
		ReceiptPrefix: receiptPrefix,
		StudentPrefix: DefaultStudentPrefix,
		Now:           time.Now,
	}
}

// Receipt returns <prefix>-<year>-<n> with n in [100, 999].
func (g *Generator) Receipt() string {
	return fmt.Sprintf("%s-%d-%d", g.ReceiptPrefix, g.now().Year(), 100+rand.IntN(900))
}

// StudentID returns <prefix>-<year>-<n> with n in [0, 999].
func (g *Generator) StudentID() string {
	return fmt.Sprintf("%s-%d-%d", g.StudentPrefix, g.now().Year(), rand.IntN(1000))
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}
