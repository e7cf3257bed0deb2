package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderPair(t *testing.T) {
	a, b := OrderPair("lead-2", "lead-1")
	assert.Equal(t, "lead-1", a)
	assert.Equal(t, "lead-2", b)

	a, b = OrderPair("lead-1", "lead-2")
	assert.Equal(t, "lead-1", a)
	assert.Equal(t, "lead-2", b)

	a, b = OrderPair("lead-1", "lead-1")
	assert.Equal(t, "lead-1", a)
	assert.Equal(t, "lead-1", b)
}

func TestEventChannel(t *testing.T) {
	assert.Equal(t, "email", EventChannel(EventTypeEmailOpened))
	assert.Equal(t, "whatsapp", EventChannel(EventTypeWhatsAppMessage))
	assert.Equal(t, "", EventChannel(EventTypePageVisited))
}
