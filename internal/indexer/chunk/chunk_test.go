package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASTSplitter_Go_SplitsOnTopLevelDeclarations(t *testing.T) {
	src := `package main

func one() int {
	return 1
}

func two() int {
	return 2
}
`
	s := NewASTSplitter()
	tuples, err := s.Split(context.Background(), "main.go", []byte(src), "go")
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Contains(t, tuples[0].Content, "func one")
	assert.Contains(t, tuples[1].Content, "func two")
	assert.Equal(t, "go", tuples[0].Language)
}

func TestASTSplitter_UnknownLanguageFallsBackToCharSplitter(t *testing.T) {
	s := NewASTSplitter()
	src := strings.Repeat("line\n", 100)
	tuples, err := s.Split(context.Background(), "notes.txt", []byte(src), "text")
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
}

func TestASTSplitter_EmptyFileFallsBackWithoutPanicking(t *testing.T) {
	s := NewASTSplitter()
	tuples, err := s.Split(context.Background(), "empty.go", []byte(""), "go")
	require.NoError(t, err)
	require.Empty(t, tuples)
}

func TestCharSplitter_WindowsWithOverlap(t *testing.T) {
	s := &CharSplitter{WindowLines: 10, OverlapLines: 2}
	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, "line")
	}
	src := strings.Join(lines, "\n")

	tuples, err := s.Split(context.Background(), "f.txt", []byte(src), "text")
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
	assert.Equal(t, 1, tuples[0].StartLine)
	assert.Equal(t, 10, tuples[0].EndLine)
	assert.Equal(t, 9, tuples[1].StartLine)
}

func TestCharSplitter_SkipsBlankWindows(t *testing.T) {
	s := NewCharSplitter()
	tuples, err := s.Split(context.Background(), "f.txt", []byte("   \n\n  \n"), "text")
	require.NoError(t, err)
	require.Empty(t, tuples)
}

func TestResolveSplitter_LangchainFallsBackWithWarning(t *testing.T) {
	var warned string
	c := ResolveSplitter("langchain", func(msg string) { warned = msg })
	_, ok := c.(*ASTSplitter)
	require.True(t, ok)
	assert.Contains(t, warned, "langchain")
}

func TestResolveSplitter_DefaultIsAST(t *testing.T) {
	c := ResolveSplitter("", nil)
	_, ok := c.(*ASTSplitter)
	require.True(t, ok)
}
