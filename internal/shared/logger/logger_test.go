package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGet_ConcurrentWithInit(t *testing.T) {
	const callers = 16
	got := make([]*zap.SugaredLogger, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				Init("production")
			}
			got[i] = Get()
		}()
	}
	wg.Wait()

	first := Get()
	require.NotNil(t, first)
	for _, l := range got {
		assert.Same(t, first, l)
	}
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named("queue"))
	assert.NotSame(t, Get(), Named("queue"))
}
