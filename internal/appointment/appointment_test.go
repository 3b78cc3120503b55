package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientInitials(t *testing.T) {
	assert.Equal(t, "J.D.", ClientInitials("Jane", "Doe"))
	assert.Equal(t, "J.", ClientInitials("Jane", ""))
	assert.Equal(t, "?", ClientInitials("", ""))
}
