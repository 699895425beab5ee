package ident

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, time.December, 1, 10, 30, 0, 0, time.Local)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerate_Format(t *testing.T) {
	g := New(WithClock(fixedClock))

	tests := []struct {
		kind    Kind
		pattern string
	}{
		{KindCollection, `^COL20241201[0-9]{3}$`},
		{KindProcessing, `^PRO20241201[0-9]{3}$`},
		{KindTest, `^TST20241201[0-9]{3}$`},
		{KindBatch, `^BAT20241201[A-Z0-9]{4}$`},
		{KindQR, `^QR20241201[A-Z0-9]{6}$`},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			id, err := g.Generate(tt.kind)
			require.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(tt.pattern), id)
		})
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	g := New()
	_, err := g.Generate(Kind("INVOICE"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown identifier kind")
}

func TestGenerate_EntropyFailure(t *testing.T) {
	g := New(WithRandom(failingReader{}))
	_, err := g.Generate(KindQR)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestGenerate_DeterministicReader(t *testing.T) {
	g := New(WithClock(fixedClock), WithRandom(bytes.NewReader(make([]byte, 64))))

	id, err := g.Generate(KindBatch)
	require.NoError(t, err)
	assert.Equal(t, "BAT20241201AAAA", id)
}

func TestGenerate_SameDayIDsDistinct(t *testing.T) {
	g := New(WithClock(fixedClock))

	const draws = 10000
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		id, err := g.Generate(KindQR)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(id, "QR20241201"), "id %s lost its date segment", id)
		seen[id] = struct{}{}
	}
	// 36^6 suffixes put the chance of any collision near 2%.
	assert.Len(t, seen, draws)
}

func TestRandomString_NoCollisions(t *testing.T) {
	g := New()

	const draws = 10000
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		s, err := g.RandomString(Alphanumeric, 12)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup, "collision after %d draws: %s", i, s)
		seen[s] = struct{}{}
	}
}

func TestRandomString_ConcurrentUse(t *testing.T) {
	g := New()

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s, err := g.RandomString(Alphanumeric, 12)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8*500)
}

func TestRandomString_EmptyAlphabet(t *testing.T) {
	_, err := New().RandomString("", 4)
	assert.Error(t, err)
}

func TestCertificateNumber(t *testing.T) {
	g := New(WithClock(fixedClock))

	got, err := g.CertificateNumber("lab")
	require.NoError(t, err)
	assert.Regexp(t, `^LAB/2024/[A-Z0-9]{6}$`, got)

	_, err = g.CertificateNumber("  ")
	assert.Error(t, err)
}

func TestBatchNumber(t *testing.T) {
	g := New(WithClock(fixedClock))
	assert.Equal(t, "20241201-007", g.BatchNumber(7))
	assert.Equal(t, "20241201-123", g.BatchNumber(123))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" batch ")
	require.NoError(t, err)
	assert.Equal(t, KindBatch, k)

	_, err = ParseKind("unknown")
	assert.Error(t, err)

	assert.Equal(t, "QR", Prefix(KindQR))
	assert.Len(t, Kinds(), 5)
}
