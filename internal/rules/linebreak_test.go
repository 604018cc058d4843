package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/siwegate/internal/siwe"
)

func TestValidateLineBreaksCleanMessage(t *testing.T) {
	assert.Empty(t, ValidateLineBreaks(goodMessage))
}

func TestValidateLineBreaksWithoutStatement(t *testing.T) {
	msg := strings.Replace(goodMessage, "Sign in with Ethereum.\n", "", 1)
	assert.Empty(t, ValidateLineBreaks(msg))

	msg = strings.Replace(goodMessage, "Sign in with Ethereum.\n\n", "", 1)
	d, ok := find(ValidateLineBreaks(msg), siwe.CodeBlankLinesBeforeFields)
	require.True(t, ok)
	assert.Equal(t, 4, d.Line)
}

func TestValidateLineBreaksFindings(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		code siwe.Code
		line int
	}{
		{
			name: "blank before address",
			msg:  strings.Replace(goodMessage, "account:\n", "account:\n\n", 1),
			code: siwe.CodeBlankLineBeforeAddress,
			line: 3,
		},
		{
			name: "statement spacing",
			msg:  strings.Replace(goodMessage, "BeAed\n\n", "BeAed\n", 1),
			code: siwe.CodeStatementSpacing,
			line: 3,
		},
		{
			name: "blank between required fields",
			msg:  strings.Replace(goodMessage, "Version: 1\n", "Version: 1\n\n", 1),
			code: siwe.CodeBlankLineBetweenFields,
			line: 9,
		},
		{
			name: "blank before optional field",
			msg:  strings.Replace(goodMessage, "\nExpiration Time:", "\n\nExpiration Time:", 1),
			code: siwe.CodeBlankLineBeforeOptionalField,
			line: 12,
		},
		{
			name: "trailing whitespace",
			msg:  strings.Replace(goodMessage, "Version: 1\n", "Version: 1  \n", 1),
			code: siwe.CodeTrailingWhitespace,
			line: 7,
		},
		{
			name: "excessive blank lines",
			msg:  strings.Replace(goodMessage, "Ethereum.\n\n", "Ethereum.\n\n\n\n", 1),
			code: siwe.CodeExcessiveBlankLines,
			line: 5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diags := ValidateLineBreaks(tc.msg)
			d, ok := find(diags, tc.code)
			require.True(t, ok, "want %s in %v", tc.code, codes(diags))
			assert.Equal(t, tc.line, d.Line)
			assert.True(t, d.Fixable)
		})
	}
}

func TestLayoutCodesAreFormatErrors(t *testing.T) {
	msg := strings.Replace(goodMessage, "Version: 1\n", "Version: 1\n\n", 1)
	d, ok := find(ValidateLineBreaks(msg), siwe.CodeBlankLineBetweenFields)
	require.True(t, ok)
	assert.Equal(t, siwe.TypeFormat, d.Type)
	assert.Equal(t, siwe.SeverityError, d.Severity)

	msg = strings.Replace(goodMessage, "Version: 1\n", "Version: 1 \n", 1)
	d, ok = find(ValidateLineBreaks(msg), siwe.CodeTrailingWhitespace)
	require.True(t, ok)
	assert.Equal(t, siwe.TypeCompliance, d.Type)
	assert.Equal(t, siwe.SeverityWarning, d.Severity)
}

func TestValidateLineBreaksCRLF(t *testing.T) {
	msg := strings.ReplaceAll(goodMessage, "\n", "\r\n")
	assert.Empty(t, ValidateLineBreaks(msg))
}
