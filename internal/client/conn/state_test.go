package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelay(t *testing.T) {
	base, ceiling := 100*time.Millisecond, 350*time.Millisecond

	assert.Equal(t, 100*time.Millisecond, reconnectDelay(base, ceiling, 0))
	assert.Equal(t, 100*time.Millisecond, reconnectDelay(base, ceiling, 1))
	assert.Equal(t, 300*time.Millisecond, reconnectDelay(base, ceiling, 3))
	assert.Equal(t, ceiling, reconnectDelay(base, ceiling, 4))
	assert.Equal(t, ceiling, reconnectDelay(base, ceiling, 1<<40))
}
