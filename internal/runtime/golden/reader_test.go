// Copyright 2016 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package golden

import (
	"strings"
	"testing"

	"github.com/google/c4jit/internal/testutil"
)

const goldenFile = `# Lists the arguments.
args "-n" "two words"
exit 3

output "first\n"
output "second\t\"quoted\"\n"
`

func TestReadTestData(t *testing.T) {
	r, err := ReadTestData(strings.NewReader(goldenFile), "testdata/echo.c")
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, &Result{
		Program: "echo.c",
		Args:    []string{"-n", "two words"},
		Exit:    3,
		Output:  "first\nsecond\t\"quoted\"\n",
	}, r)
}

func TestReadTestDataDefaults(t *testing.T) {
	r, err := ReadTestData(strings.NewReader(""), "empty.c")
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, &Result{Program: "empty.c"}, r)
}

func TestReadTestDataErrors(t *testing.T) {
	for _, tc := range []struct {
		in, err string
	}{
		{"stdout \"x\"", `bad.golden:1: unrecognised line`},
		{"\nexit three", "bad.golden:2: bad exit status"},
		{"output \"a\" \"b\"", "output takes one quoted string"},
		{"output", "output takes one quoted string"},
		{"args \"open", "bad string"},
	} {
		_, err := ReadTestData(strings.NewReader(tc.in), "bad.golden")
		testutil.ExpectErrorContains(t, err, tc.err)
	}
}
