package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatE164(t *testing.T) {
	got, err := FormatE164("0812-3456-7890", RegionID)
	require.NoError(t, err)
	assert.Equal(t, "+6281234567890", got)
	assert.True(t, IsE164Format(got))

	_, err = FormatE164("12", RegionID)
	assert.Error(t, err)

	_, err = FormatE164("not a phone", RegionID)
	assert.Error(t, err)
}

func TestIsMobileNumber(t *testing.T) {
	assert.True(t, IsMobileNumber("+6281234567890", RegionID))
	assert.True(t, IsMobileNumber("081234567890", RegionID))
	assert.False(t, IsMobileNumber("1234", RegionID))
	assert.False(t, IsMobileNumber("", RegionID))
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "a***@domain.com", MaskEmail("abcd@domain.com"))
	assert.Equal(t, "***@domain.com", MaskEmail("a@domain.com"))
	assert.Equal(t, "", MaskEmail(""))

	assert.Equal(t, "**********7890", MaskAccountNumber("+6281234567890"))
	assert.Equal(t, "***", MaskAccountNumber("123"))
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("student@example.com"))
	assert.False(t, IsEmail("student@"))
}
