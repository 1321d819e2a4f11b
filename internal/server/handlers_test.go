package server

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestParseValue(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "0"},
		{"1000", "1000"},
		{"0x1f", "31"},
		{"0X1f", "31"},
	}
	for _, tc := range cases {
		v, err := parseValue(tc.in)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, v.String())
	}

	for _, bad := range []string{"abc", "0xzz", "0X", "1.5"} {
		_, err := parseValue(bad)
		assert.Error(t, err)
	}
}
