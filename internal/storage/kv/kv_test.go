package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		key     string
		want    bool
	}{
		{name: "star matches all", pattern: "*", key: "user:1", want: true},
		{name: "empty matches all", pattern: "", key: "user:1", want: true},
		{name: "trailing star prefix", pattern: "user:*", key: "user:42", want: true},
		{name: "trailing star other prefix", pattern: "user:*", key: "package:42", want: false},
		{name: "leading star suffix", pattern: "*:all", key: "idx:user:all", want: true},
		{name: "leading star wrong suffix", pattern: "*:all", key: "idx:user:username:bob", want: false},
		{name: "both stars contains", pattern: "*user*", key: "idx:user:all", want: true},
		{name: "no star is prefix", pattern: "idx:user", key: "idx:user:username:bob", want: true},
		{name: "no star not prefix", pattern: "user", key: "idx:user:all", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.key))
		})
	}
}

func TestRedisPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{pattern: "*", want: "*"},
		{pattern: "user:*", want: "user:*"},
		{pattern: "user:", want: "user:*"},
		{pattern: "*:all", want: "*:all"},
		{pattern: "*mid*", want: "*mid*"},
		{pattern: "a?b[", want: `a\?b\[*`},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, redisPattern(tt.pattern))
		})
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{pattern: "*", want: "%"},
		{pattern: "user:*", want: "user:%"},
		{pattern: "user:", want: "user:%"},
		{pattern: "*:all", want: "%:all"},
		{pattern: "idx_1%", want: `idx\_1\%%`},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.pattern))
		})
	}
}
