package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNotEmpty(t *testing.T) {
	assert.NoError(t, ValidateNotEmpty("value", "field"))
	assert.Error(t, ValidateNotEmpty("", "field"))
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(5, 1, 10, "count"))
	assert.NoError(t, ValidateRange(1, 1, 10, "count"))
	assert.NoError(t, ValidateRange(10, 1, 10, "count"))
	assert.Error(t, ValidateRange(0, 1, 10, "count"))
	assert.Error(t, ValidateRange(11, 1, 10, "count"))
}

func TestValidateMinLength(t *testing.T) {
	assert.NoError(t, ValidateMinLength("12345678", 8, "password"))
	assert.Error(t, ValidateMinLength("1234567", 8, "password"))
	assert.Error(t, ValidateMinLength("", 1, "password"))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ValidatePositive(1, "timeout"))
	assert.Error(t, ValidatePositive(0, "timeout"))
	assert.Error(t, ValidatePositive(-5, "timeout"))
}

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+tag@sub.example.co.uk",
		"x@y.z",
	}
	for _, email := range valid {
		assert.NoError(t, ValidateEmail(email), "email %q", email)
	}

	invalid := []string{
		"",
		"not-an-email",
		"@example.com",
		"alice@",
		"Alice Smith <alice@example.com>",
		"alice@example.com extra",
	}
	for _, email := range invalid {
		assert.Error(t, ValidateEmail(email), "email %q", email)
	}
}
