// Package mdtest extracts compiler test cases from Markdown documents.
//
// A test case is introduced by a heading starting with "Test: ", holds
// exactly one fenced p8 source block, and any number of assertion
// fences: "asm" fences list substrings the generated assembly must
// contain, "error" fences list substrings that must occur in the
// compiler diagnostics.
package mdtest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// AssertionType is the kind of an assertion fence.
type AssertionType string

const (
	AssertAsm   AssertionType = "asm"
	AssertError AssertionType = "error"
)

// Assertion is one expectation on a compilation.
type Assertion struct {
	Type    AssertionType
	Content string // one expected substring per non-empty line
}

// Lines returns the non-empty lines of the assertion body.
func (a Assertion) Lines() []string {
	var out []string
	for _, line := range strings.Split(a.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// TestCase is one complete compile test extracted from Markdown.
type TestCase struct {
	Name       string
	Source     string
	Assertions []Assertion
}

const inputLanguage = "p8"

// ExtractTestCases parses a Markdown document and collects its tests.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	md := goldmark.New()
	source := []byte(markdownContent)
	doc := md.Parser().Parse(text.NewReader(source))

	var testCases []TestCase
	var current *TestCase

	finish := func() error {
		if current == nil {
			return nil
		}
		if current.Source == "" {
			return fmt.Errorf("test %q has no %s source fence", current.Name, inputLanguage)
		}
		if len(current.Assertions) == 0 {
			return fmt.Errorf("test %q has no assertions", current.Name)
		}
		testCases = append(testCases, *current)
		current = nil
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			headingText := extractText(n, source)
			if strings.HasPrefix(headingText, "Test: ") {
				if err := finish(); err != nil {
					return ast.WalkStop, err
				}
				current = &TestCase{Name: strings.TrimPrefix(headingText, "Test: ")}
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			content := fenceContent(n, source)
			if current == nil {
				if language == inputLanguage || language == string(AssertAsm) || language == string(AssertError) {
					return ast.WalkStop, fmt.Errorf("%s fence found outside of a test case", language)
				}
				return ast.WalkContinue, nil
			}
			switch language {
			case inputLanguage:
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("test %q has multiple source fences", current.Name)
				}
				current.Source = strings.TrimRight(content, "\n")
			case string(AssertAsm), string(AssertError):
				current.Assertions = append(current.Assertions, Assertion{
					Type:    AssertionType(language),
					Content: strings.TrimRight(content, "\n"),
				})
			default:
				return ast.WalkStop, fmt.Errorf("unknown fence language %q in test %q", language, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return testCases, nil
}

func extractText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}
