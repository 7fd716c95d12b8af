// Package chunk provides the two indexer.Chunker implementations: an
// AST-aware splitter over go-tree-sitter for languages it has grammars for,
// and a character/line-window splitter used for everything else and as the
// silent fallback for splitter=langchain.
package chunk

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/amanmcp/syncore/internal/indexer"
)

// topLevelNodeTypes lists the tree-sitter node types treated as one chunk
// boundary per language. Top-level nodes of other types produce no chunk;
// the character splitter is used only when a file yields no chunk at all.
var topLevelNodeTypes = map[string]map[string]struct{}{
	"go": {
		"function_declaration": {}, "method_declaration": {}, "type_declaration": {},
	},
	"python": {
		"function_definition": {}, "class_definition": {},
	},
	"javascript": {
		"function_declaration": {}, "class_declaration": {}, "method_definition": {},
	},
	"typescript": {
		"function_declaration": {}, "class_declaration": {}, "method_definition": {},
		"interface_declaration": {},
	},
}

func treeSitterLanguage(lang string) *sitter.Language {
	switch lang {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript", "typescript":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// ASTSplitter chunks source by top-level AST declarations, falling back to
// the character splitter for any language it has no grammar for.
type ASTSplitter struct {
	fallback *CharSplitter
}

// NewASTSplitter constructs the default splitter=ast chunker.
func NewASTSplitter() *ASTSplitter {
	return &ASTSplitter{fallback: NewCharSplitter()}
}

var _ indexer.Chunker = (*ASTSplitter)(nil)

func (s *ASTSplitter) Split(ctx context.Context, relativePath string, content []byte, language string) ([]indexer.Tuple, error) {
	tsLang := treeSitterLanguage(language)
	if tsLang == nil {
		return s.fallback.Split(ctx, relativePath, content, language)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return s.fallback.Split(ctx, relativePath, content, language)
	}
	defer tree.Close()

	boundaryTypes := topLevelNodeTypes[language]
	var tuples []indexer.Tuple
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if _, ok := boundaryTypes[child.Type()]; !ok {
			continue
		}
		start := int(child.StartPoint().Row) + 1
		end := int(child.EndPoint().Row) + 1
		text := string(content[child.StartByte():child.EndByte()])
		tuples = append(tuples, indexer.Tuple{
			Content:   text,
			StartLine: start,
			EndLine:   end,
			Language:  language,
		})
	}

	if len(tuples) == 0 {
		return s.fallback.Split(ctx, relativePath, content, language)
	}
	return tuples, nil
}

// CharSplitter is the character/line-window fallback chunker: fixed-size
// windows of source lines with no AST awareness, used for languages without
// a tree-sitter grammar and as splitter=langchain's silent target.
type CharSplitter struct {
	WindowLines int
	OverlapLines int
}

// NewCharSplitter constructs the default character splitter: ~40-line
// windows with 5 lines of overlap.
func NewCharSplitter() *CharSplitter {
	return &CharSplitter{WindowLines: 40, OverlapLines: 5}
}

var _ indexer.Chunker = (*CharSplitter)(nil)

func (s *CharSplitter) Split(_ context.Context, _ string, content []byte, language string) ([]indexer.Tuple, error) {
	lines := strings.Split(string(content), "\n")
	if len(lines) == 0 {
		return nil, nil
	}

	window := s.WindowLines
	if window <= 0 {
		window = 40
	}
	overlap := s.OverlapLines
	if overlap < 0 || overlap >= window {
		overlap = 0
	}
	stride := window - overlap

	var tuples []indexer.Tuple
	for start := 0; start < len(lines); start += stride {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			tuples = append(tuples, indexer.Tuple{
				Content:   text,
				StartLine: start + 1,
				EndLine:   end,
				Language:  language,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return tuples, nil
}

// ResolveSplitter maps the tool surface's splitter option to a Chunker.
// "langchain" is accepted and silently mapped to the AST splitter with a
// warning.
func ResolveSplitter(name string, warn func(string)) indexer.Chunker {
	switch name {
	case "", "ast":
		return NewASTSplitter()
	case "langchain":
		if warn != nil {
			warn("splitter=langchain is not implemented; falling back to ast")
		}
		return NewASTSplitter()
	default:
		return NewASTSplitter()
	}
}
