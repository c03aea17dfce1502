package twin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesRoundTrip(t *testing.T) {
	cases := [][]string{
		{},
		{"temp"},
		{"temp", "gps"},
		{"temp", "gps", "humidity"},
		{"a b", "c-d", "e_f"},
	}
	for _, capabilities := range cases {
		assert.Equal(t, capabilities, splitCapabilities(joinCapabilities(capabilities)))
	}
}

func TestSplitCapabilitiesDropsEmptySegments(t *testing.T) {
	assert.Equal(t, []string{}, splitCapabilities(""))
	assert.Equal(t, []string{"temp"}, splitCapabilities(",temp,"))
	assert.Equal(t, []string{"temp", "gps"}, splitCapabilities("temp,,gps"))
}

func TestValidateCapabilities(t *testing.T) {
	assert.True(t, validateCapabilities(nil))
	assert.True(t, validateCapabilities([]string{"temp", "gps"}))
	assert.False(t, validateCapabilities([]string{"temp,gps"}))
}
