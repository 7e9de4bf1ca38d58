package concurrent

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOrCreateOnce(t *testing.T) {
	m := NewMap[string, string](HashString)
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			got := m.GetOrCreate("10.0.0.2:22", func() string {
				created.Add(1)
				return "breaker-" + strconv.Itoa(i)
			})
			assert.NotEmpty(t, got)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	first := m.GetOrCreate("10.0.0.2:22", func() string { return "again" })
	assert.NotEqual(t, "again", first)
}

func TestGetOrCreatePerKey(t *testing.T) {
	m := NewMap[string, int](HashString)
	for i := range 40 {
		key := "10.0.0." + strconv.Itoa(i) + ":22"
		assert.Equal(t, i, m.GetOrCreate(key, func() int { return i }))
	}
	for i := range 40 {
		key := "10.0.0." + strconv.Itoa(i) + ":22"
		assert.Equal(t, i, m.GetOrCreate(key, func() int { return -1 }))
	}
}
