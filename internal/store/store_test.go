package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholdMinutes(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     int
	}{
		{"empty", "", DefaultThresholdMinutes},
		{"number", `{"threshold_minutes": 10}`, 10},
		{"numeric string", `{"threshold_minutes": "7"}`, 7},
		{"missing key", `{"quiet_hours": true}`, DefaultThresholdMinutes},
		{"garbage", `not json`, DefaultThresholdMinutes},
		{"zero", `{"threshold_minutes": 0}`, DefaultThresholdMinutes},
		{"negative", `{"threshold_minutes": -3}`, DefaultThresholdMinutes},
		{"non-numeric string", `{"threshold_minutes": "soon"}`, DefaultThresholdMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{NotificationSettings: tt.settings}
			assert.Equal(t, tt.want, u.ThresholdMinutes())
		})
	}
}

func TestHasHome(t *testing.T) {
	lat, lng := 41.88, -87.63
	assert.False(t, (&User{}).HasHome())
	assert.False(t, (&User{HomeLat: &lat}).HasHome())
	assert.True(t, (&User{HomeLat: &lat, HomeLng: &lng}).HasHome())
}

func TestFavoritesRoundTrip(t *testing.T) {
	assert.Equal(t, "[]", encodeFavorites(nil))
	assert.Equal(t, `["Red","22"]`, encodeFavorites([]string{"Red", "22"}))
	assert.Equal(t, []string{"Red", "22"}, decodeFavorites(`["Red","22"]`))
	assert.Nil(t, decodeFavorites(""))
	assert.Nil(t, decodeFavorites("oops"))
}
