package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateAdmitsExactlyOne(t *testing.T) {
	var g Gate

	assert.True(t, g.TryAdmit())
	assert.False(t, g.TryAdmit(), "second admit without release must fail")
	assert.True(t, g.Occupied())

	g.Release()
	assert.False(t, g.Occupied())
	assert.True(t, g.TryAdmit(), "gate must be reusable after release")
}

func TestGateSingleAdmissionUnderContention(t *testing.T) {
	var g Gate
	var wg sync.WaitGroup
	admitted := make(chan struct{}, 64)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAdmit() {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	n := 0
	for range admitted {
		n++
	}
	assert.Equal(t, 1, n, "exactly one goroutine may hold the gate")
}
