package sqsmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelaySeconds(t *testing.T) {
	assert.Equal(t, int32(0), delaySeconds(0))
	assert.Equal(t, int32(0), delaySeconds(-time.Second))
	assert.Equal(t, int32(1), delaySeconds(300*time.Millisecond))
	assert.Equal(t, int32(60), delaySeconds(time.Minute))
	assert.Equal(t, int32(900), delaySeconds(time.Hour))
}
