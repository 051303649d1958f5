// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	key := "TEST_KEY"
	fallback := "default_value"

	// Test when the environment variable is not set
	value := getEnv(key, fallback)
	assert.Equal(t, fallback, value)

	// Test when the environment variable is set
	expectedValue := "expected_value"
	os.Setenv(key, expectedValue)
	value = getEnv(key, fallback)
	assert.Equal(t, expectedValue, value)

	// Clean up
	os.Unsetenv(key)
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_KEY"

	// Not set: fall back
	assert.Equal(t, 42, getEnvInt(key, 42))

	// Set to a number
	os.Setenv(key, "7")
	assert.Equal(t, 7, getEnvInt(key, 42))

	// Set to garbage: fall back
	os.Setenv(key, "not-a-number")
	assert.Equal(t, 42, getEnvInt(key, 42))

	os.Unsetenv(key)
}
