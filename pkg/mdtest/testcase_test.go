package mdtest

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestExtractTestCases(t *testing.T) {
	md := `
# Some document

## Test: first

` + "```p8" + `
main {
}
` + "```" + `

` + "```asm" + `
lda  #1
sta  x
` + "```" + `

## Test: second

` + "```p8" + `
other {
}
` + "```" + `

` + "```error" + `
some message
` + "```" + `
`
	cases, err := ExtractTestCases(md)
	be.Err(t, err, nil)
	be.Equal(t, 2, len(cases))

	be.Equal(t, "first", cases[0].Name)
	be.Equal(t, "main {\n}", cases[0].Source)
	be.Equal(t, 1, len(cases[0].Assertions))
	be.Equal(t, AssertAsm, cases[0].Assertions[0].Type)
	be.Equal(t, []string{"lda  #1", "sta  x"}, cases[0].Assertions[0].Lines())

	be.Equal(t, "second", cases[1].Name)
	be.Equal(t, AssertError, cases[1].Assertions[0].Type)
}

func TestExtractRejectsTestWithoutSource(t *testing.T) {
	md := "## Test: broken\n\n```asm\nlda #0\n```\n"
	_, err := ExtractTestCases(md)
	be.True(t, err != nil)
}

func TestExtractRejectsFenceOutsideTest(t *testing.T) {
	md := "```p8\nmain {\n}\n```\n"
	_, err := ExtractTestCases(md)
	be.True(t, err != nil)
}

func TestExtractRejectsUnknownFence(t *testing.T) {
	md := "## Test: x\n\n```p8\nmain {\n}\n```\n\n```wat\nnope\n```\n"
	_, err := ExtractTestCases(md)
	be.True(t, err != nil)
}

func TestExtractIgnoresPlainCodeBlocks(t *testing.T) {
	md := "some prose\n\n```\njust an example\n```\n\n## Test: ok\n\n```p8\nmain {\n}\n```\n\n```asm\nrts\n```\n"
	cases, err := ExtractTestCases(md)
	be.Err(t, err, nil)
	be.Equal(t, 1, len(cases))
}
