package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080", " HTTPS://Chat.Example.com ", "not a url", ""}, zaptest.NewLogger(t))

	cases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:8080", true},
		{"https://chat.example.com", true},
		{"https://CHAT.example.com/path", true},
		{"http://evil.example.com", false},
		{"", false},
		{"::", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, policy.check(r), "origin %q", tc.origin)
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zaptest.NewLogger(t))

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, policy.check(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, policy.check(r), "requests without an Origin header are rejected")
}
