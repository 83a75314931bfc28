package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceQueue(t *testing.T) {
	assert.Equal(t, "notifications_queue.admin-1", DeviceQueue("admin-1"))
	assert.NotEqual(t, DeviceQueue("admin-1"), DeviceQueue("admin-2"))
}
