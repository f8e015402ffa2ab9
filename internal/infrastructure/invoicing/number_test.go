package invoicing

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeNumberGenerator_Next(t *testing.T) {
	gen, err := NewSnowflakeNumberGenerator("INV", 1)
	require.NoError(t, err)

	issued := time.Date(2024, 3, 10, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	number := gen.Next(issued)

	assert.Regexp(t, regexp.MustCompile(`^INV-20240311-\d+$`), number)
}

func TestSnowflakeNumberGenerator_Unique(t *testing.T) {
	gen, err := NewSnowflakeNumberGenerator("", 7)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				n := gen.Next(time.Now())
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 2000)
}

func TestNewSnowflakeNumberGenerator_InvalidNode(t *testing.T) {
	_, err := NewSnowflakeNumberGenerator("INV", 4096)
	assert.Error(t, err)
}
