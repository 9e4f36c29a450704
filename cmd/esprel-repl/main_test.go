package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsMoreInput(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{`1 + 1`, false},
		{`function f() {`, true},
		{`function f() {}`, false},
		{`[1, 2,`, true},
		{`(a, b) =>`, false},
		{`"a { b"`, false},
		{"`tmpl with ${unbalanced`", false},
		{`if (x) { y(); } else {`, true},
		{`var s = "\"{";`, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, needsMoreInput(tc.src+"\n"), "input: %s", tc.src)
	}
}
