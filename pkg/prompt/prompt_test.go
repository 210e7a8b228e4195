package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Choice
		ok    bool
	}{
		{"retry", ChoiceRetry, true},
		{"r", ChoiceRetry, true},
		{"R", ChoiceRetry, true},
		{"  continue ", ChoiceContinue, true},
		{"c", ChoiceContinue, true},
		{"quit", ChoiceQuit, true},
		{"Q", ChoiceQuit, true},
		{"", 0, false},
		{"maybe", 0, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if ok {
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	}
}

func TestAsk(t *testing.T) {
	var out bytes.Buffer
	choice, err := Ask(strings.NewReader("r\n"), &out, "all ports failed")
	require.NoError(t, err)
	assert.Equal(t, ChoiceRetry, choice)
	assert.Contains(t, out.String(), "all ports failed")
}

func TestAskRepromptsOnInvalidInput(t *testing.T) {
	var out bytes.Buffer
	choice, err := Ask(strings.NewReader("what\n\nq\n"), &out, "")
	require.NoError(t, err)
	assert.Equal(t, ChoiceQuit, choice)
	assert.Contains(t, out.String(), "Please answer")
}

func TestAskDefaultsToContinueOnEOF(t *testing.T) {
	var out bytes.Buffer
	choice, err := Ask(strings.NewReader(""), &out, "")
	require.NoError(t, err)
	assert.Equal(t, ChoiceContinue, choice)
}

func TestChoiceString(t *testing.T) {
	assert.Equal(t, "retry", ChoiceRetry.String())
	assert.Equal(t, "continue", ChoiceContinue.String())
	assert.Equal(t, "quit", ChoiceQuit.String())
	assert.Equal(t, "unknown", Choice(42).String())
}
