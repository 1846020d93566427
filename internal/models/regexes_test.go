// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func TestIsRepoPath(t *testing.T) {
	type testCase struct {
		input    string
		expected bool
	}

	cases := []testCase{
		{
			input:    "library/alpine",
			expected: true,
		},
		{
			input:    "alpine",
			expected: true,
		},
		{
			input:    "my-org/sub.group/app_1",
			expected: true,
		},
		// some extra cases
		{
			input:    "",
			expected: false,
		},
		{
			input:    "/library/alpine",
			expected: false,
		},
		{
			input:    "library/alpine/",
			expected: false,
		},
		{
			input:    "library//alpine",
			expected: false,
		},
		{
			input:    "Library/alpine",
			expected: false,
		},
		{
			input:    "library/-alpine",
			expected: false,
		},
		{
			input:    "library/alpine-",
			expected: false,
		},
		{
			input:    strings.Repeat("a", 255),
			expected: true,
		},
		{
			input:    strings.Repeat("a", 256),
			expected: false,
		},
		{
			input:    strings.Repeat("a/", 150) + "a",
			expected: false,
		},
	}

	for _, tc := range cases {
		matches := IsRepoPath(tc.input)
		assert.DeepEqual(t, fmt.Sprintf("matches %q", tc.input), matches, tc.expected)
	}
}

func TestIsTagName(t *testing.T) {
	type testCase struct {
		input    string
		expected bool
	}

	cases := []testCase{
		{
			input:    "latest",
			expected: true,
		},
		{
			input:    "v1.2.3",
			expected: true,
		},
		{
			input:    "_internal",
			expected: true,
		},
		{
			input:    ".hidden",
			expected: true,
		},
		{
			input:    "-rc1",
			expected: true,
		},
		{
			input:    strings.Repeat("x", 128),
			expected: true,
		},
		// some extra cases
		{
			input:    "",
			expected: false,
		},
		{
			input:    strings.Repeat("x", 129),
			expected: false,
		},
		{
			input:    "with space",
			expected: false,
		},
	}

	for _, tc := range cases {
		matches := IsTagName(tc.input)
		assert.DeepEqual(t, fmt.Sprintf("matches %q", tc.input), matches, tc.expected)
	}
}
