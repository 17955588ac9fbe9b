package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{input: "1,234.56", want: "1234.56", wantOK: true},
		{input: "1.234,56", want: "1234.56", wantOK: true},
		{input: "150.000,00 CR", want: "150000", wantOK: true},
		{input: "25.000,00 DB", want: "-25000", wantOK: true},
		{input: "(12.00)", want: "-12", wantOK: true},
		{input: "-5", want: "-5", wantOK: true},
		{input: "Rp.150.000", want: "150000", wantOK: true},
		{input: "12,5", want: "12.5", wantOK: true},
		{input: "$ 99.99", want: "99.99", wantOK: true},
		{input: "", wantOK: false},
		{input: "abc", wantOK: false},
		{input: "12a.00", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestCompileRegex(t *testing.T) {
	re, ok := CompileRegex(`^GRAB\*`, false)
	assert.True(t, ok)
	assert.True(t, re.MatchString("grab*ride"))

	re, ok = CompileRegex(`^GRAB`, true)
	assert.True(t, ok)
	assert.False(t, re.MatchString("grab ride"))

	_, ok = CompileRegex(`([unclosed`, false)
	assert.False(t, ok)
}
