package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCohereChatOpensAfterFiveConsecutiveFailures(t *testing.T) {
	breakers := NewPazPazCircuitBreakers("cohere_chat", 5, 60*time.Second)
	cb := breakers.CohereChat

	failing := errors.New("boom")
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, failing })
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCohereChatHalfOpenProbeRecovers(t *testing.T) {
	breakers := NewPazPazCircuitBreakers("cohere_chat", 2, 10*time.Millisecond)
	cb := breakers.CohereChat

	failing := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, failing })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	result, err := cb.Execute(func() (interface{}, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, cb.State())
}
