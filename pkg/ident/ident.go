// Package ident mints the human-readable identifiers used across the herb
// supply chain: collection, processing, test, batch and QR IDs, plus
// certificate and batch numbers.
//
// IDs have the shape <PREFIX><YYYYMMDD><SUFFIX>. The suffix is drawn from
// crypto/rand so that independent organizations minting records cannot guess
// or correlate each other's IDs. The generator never checks for collisions;
// callers reject duplicates at the persistence layer.
package ident

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

// Kind selects the document type an identifier is minted for.
type Kind string

const (
	KindCollection Kind = "COLLECTION"
	KindProcessing Kind = "PROCESSING"
	KindTest       Kind = "TEST"
	KindBatch      Kind = "BATCH"
	KindQR         Kind = "QR"
)

const (
	// Alphanumeric is the alphabet used for batch, QR and certificate suffixes.
	Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Numeric is the alphabet used for collection, processing and test suffixes.
	Numeric = "0123456789"

	dateLayout = "20060102"
)

// format describes how an ID of a given kind is built.
type format struct {
	prefix   string
	alphabet string
	length   int
}

var formats = map[Kind]format{
	KindCollection: {prefix: "COL", alphabet: Numeric, length: 3},
	KindProcessing: {prefix: "PRO", alphabet: Numeric, length: 3},
	KindTest:       {prefix: "TST", alphabet: Numeric, length: 3},
	KindBatch:      {prefix: "BAT", alphabet: Alphanumeric, length: 4},
	KindQR:         {prefix: "QR", alphabet: Alphanumeric, length: 6},
}

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindCollection, KindProcessing, KindTest, KindBatch, KindQR}
}

// ParseKind converts a case-insensitive kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := formats[k]; !ok {
		return "", fmt.Errorf("unknown identifier kind %q", s)
	}
	return k, nil
}

// Prefix returns the fixed prefix for a kind, or "" if the kind is unknown.
func Prefix(k Kind) string {
	return formats[k].prefix
}

// Generator mints identifiers. The zero value is not usable; use New.
// A Generator is safe for concurrent use as long as its random source is.
type Generator struct {
	random io.Reader
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom overrides the entropy source. Tests use this to inject
// deterministic or failing readers.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithClock overrides the time source used for the date segment.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator backed by crypto/rand and the local wall clock.
func New(opts ...Option) *Generator {
	g := &Generator{
		random: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a new identifier for the given kind.
func (g *Generator) Generate(k Kind) (string, error) {
	f, ok := formats[k]
	if !ok {
		return "", fmt.Errorf("unknown identifier kind %q", k)
	}
	suffix, err := g.RandomString(f.alphabet, f.length)
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", strings.ToLower(string(k)), err)
	}
	return f.prefix + g.now().Format(dateLayout) + suffix, nil
}

// CertificateNumber returns <TYPE>/<year>/<6 alphanumerics>, for example
// LAB/2024/X7K2QP.
func (g *Generator) CertificateNumber(certType string) (string, error) {
	certType = strings.ToUpper(strings.TrimSpace(certType))
	if certType == "" {
		return "", fmt.Errorf("certificate type is required")
	}
	suffix, err := g.RandomString(Alphanumeric, 6)
	if err != nil {
		return "", fmt.Errorf("generate certificate number: %w", err)
	}
	return fmt.Sprintf("%s/%d/%s", certType, g.now().Year(), suffix), nil
}

// BatchNumber returns a day-scoped sequential batch number such as
// 20241201-007.
func (g *Generator) BatchNumber(sequence int) string {
	return fmt.Sprintf("%s-%03d", g.now().Format(dateLayout), sequence)
}

// RandomString draws length characters uniformly from alphabet.
func (g *Generator) RandomString(alphabet string, length int) (string, error) {
	if alphabet == "" {
		return "", fmt.Errorf("empty alphabet")
	}
	max := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}
