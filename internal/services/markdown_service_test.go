package services

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownService_Render(t *testing.T) {
	service := NewMarkdownService(MarkdownStyleNoTTY, 60)
	assert.Equal(t, "markdown", service.Name())

	_, err := service.Render("# title")
	assert.ErrorContains(t, err, "not initialized")

	require.NoError(t, service.Initialize())

	rendered, err := service.Render("# Capital\n\nThe capital of France is **Paris**.")
	require.NoError(t, err)
	assert.Contains(t, rendered, "Capital")
	assert.Contains(t, rendered, "Paris")

	_, err = service.Render("   ")
	assert.ErrorContains(t, err, "cannot be empty")
}

func TestDetectMarkdownStyle_NonTerminal(t *testing.T) {
	output := termenv.NewOutput(&bytes.Buffer{}, termenv.WithProfile(termenv.Ascii))
	assert.Equal(t, MarkdownStyleNoTTY, DetectMarkdownStyle(output))
}
