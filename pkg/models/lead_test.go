package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemperatureFor(t *testing.T) {
	tests := []struct {
		score    int
		expected Temperature
	}{
		{0, TemperatureCold},
		{29, TemperatureCold},
		{30, TemperatureWarm},
		{69, TemperatureWarm},
		{70, TemperatureHot},
		{100, TemperatureHot},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TemperatureFor(tt.score, 30, 70), "score %d", tt.score)
	}
}

func TestTemperatureForMonotonic(t *testing.T) {
	rank := map[Temperature]int{TemperatureCold: 0, TemperatureWarm: 1, TemperatureHot: 2}

	prev := TemperatureFor(0, 30, 70)
	for score := 1; score <= 100; score++ {
		cur := TemperatureFor(score, 30, 70)
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "score %d", score)
		prev = cur
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, ScoreMin, ClampScore(-15))
	assert.Equal(t, 0, ClampScore(0))
	assert.Equal(t, 42, ClampScore(42))
	assert.Equal(t, 100, ClampScore(100))
	assert.Equal(t, ScoreMax, ClampScore(140))
}

func TestLeadIdentity(t *testing.T) {
	email := "a@example.com"
	phone := "5511987654321"

	lead := &Lead{Email: &email, Phone: &phone}
	key := lead.Identity()
	assert.Equal(t, email, key.Email)
	assert.Equal(t, phone, key.Phone)
	assert.False(t, key.IsEmpty())

	assert.True(t, (&Lead{}).Identity().IsEmpty())
	assert.False(t, (&Lead{Phone: &phone}).Identity().IsEmpty())
}
