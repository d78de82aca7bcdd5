// Copyright 2015 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/c4jit/internal/runtime/golden"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/google/c4jit/internal/testutil"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

func run(t *testing.T, src string, args []string, opts ...Option) (int, string, error) {
	t.Helper()
	var out bytes.Buffer
	r, err := New(append([]Option{Stdout(&out), Stdin(strings.NewReader("")), HeapSize(1 << 16), MaxSteps(1 << 20)}, opts...)...)
	testutil.FatalIfErr(t, err)
	code, err := r.CompileAndRun(context.Background(), "test.c", strings.NewReader(src), args)
	return code, out.String(), err
}

var programTests = []struct {
	name string
	src  string
	args []string
	code int
	out  string
}{
	{"precedence", "int main() { return 2+3*4; }", nil, 14, ""},
	{"negative result", "int main() { return -5; }", nil, -5, ""},
	{"parameter shadows global", `
int x;
int f(int x) { return x + 1; }
int main() {
  int r;
  x = 42;
  r = f(5);
  if (x != 42) return 1;
  return r;
}`, nil, 6, ""},
	{"pointer strides", `
int main() {
  int *a;
  char *c;
  a = malloc(16);
  c = (char *)a;
  *(a+1) = 7;
  if ((char *)(a + 1) - c != 4) return 1;
  if (c[4] != 7) return 2;
  return *(a+1);
}`, nil, 7, ""},
	{"short circuit", `
int called;
int side() { called = called + 1; return 1; }
int main() {
  int r;
  r = 0 && side();
  if (called) return 1;
  r = 1 || side();
  if (called) return 2;
  r = r + (1 && side());
  if (called != 1) return 3;
  return r;
}`, nil, 2, ""},
	{"short circuit skips block", `
int called;
int side(){ called=1; return 1; }
int main(){ called=0; if (0 && side()) {} return called; }`, nil, 0, ""},
	{"while with globals", `
int i; int s;
int main() { i=0; s=0; while(i<5){ s=s+i; i=i+1; } return s; }`, nil, 10, ""},
	{"while", `
int main() {
  int i, s;
  i = 0; s = 0;
  while (i < 5) { s = s + i; i = i + 1; }
  return s;
}`, nil, 10, ""},
	{"printf argument order", `
int main() {
  printf("%d %s %c %x|%5d|%-3d|%%\n", 42, "str", 'c', 255, 7, -1);
  return 0;
}`, nil, 0, "42 str c ff|    7|-1 |%\n"},
	{"enum and ternary", `
enum { A, B, C = 10, D };
int main(int argc, char **argv) {
  return (argc > 1 ? 100 : 0) + A + B * 2 + D;
}`, nil, 13, ""},
	{"argv", `
enum { A, B, C = 10, D };
int main(int argc, char **argv) {
  printf("%s %s\n", argv[0], argv[1]);
  return (argc > 1 ? 100 : 0) + A + B * 2 + D;
}`, []string{"x"}, 113, "test.c x\n"},
	{"bit operations", `
int main() {
  int v;
  v = -16;
  if ((v >> 2) != -4) return 1;
  if ((1 << 4 | 3 ^ 1) != 18) return 2;
  if ((~15 & 240) != 240) return 3;
  if (-7 / 2 != -3 || -7 % 2 != -1) return 4;
  return !v + 5 % 3;
}`, nil, 2, ""},
	{"exit", `
int main() {
  printf("bye\n");
  exit(3);
  return 0;
}`, nil, 3, "bye\n"},
	{"char globals", `
char c;
char *s;
int main() {
  s = "abc";
  c = s[1];
  c = c + 256;
  return c;
}`, nil, 'b', ""},
}

func TestCompileAndRun(t *testing.T) {
	for _, tc := range programTests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			code, out, err := run(t, tc.src, tc.args)
			testutil.FatalIfErr(t, err)
			testutil.ExpectNoDiff(t, tc.code, code)
			testutil.ExpectNoDiff(t, tc.out, out)
		})
	}
}

var errorTests = []struct {
	name string
	src  string
	err  string
}{
	{"undeclared function", "int main() { return g(); }", "test.c:1: bad function call"},
	{"no main", "int f() { return 0; }", "main() not defined"},
	{"null dereference", "int main() { int *p; p = 0; return *p; }", "segmentation fault at 0x00000000"},
	{"division by zero", "int main() { int z; z = 0; return 1 / z; }", "divide error"},
	{"runaway", "int main() { while (1) ; return 0; }", "instruction limit exceeded"},
}

func TestCompileAndRunErrors(t *testing.T) {
	for _, tc := range errorTests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			code, _, err := run(t, tc.src, nil)
			testutil.ExpectErrorContains(t, err, tc.err)
			testutil.ExpectNoDiff(t, -1, code)
		})
	}
}

func TestRuntimeFaultIsMachineFault(t *testing.T) {
	_, _, err := run(t, "int main() { return *(int *)16; }", nil)
	var f *vm.Fault
	if !errors.As(err, &f) {
		t.Fatalf("expected a machine fault, got %v", err)
	}
	testutil.ExpectNoDiff(t, uint32(16), f.Addr)
}

func TestTestdataPrograms(t *testing.T) {
	progs, err := filepath.Glob(filepath.Join("testdata", "*.c"))
	testutil.FatalIfErr(t, err)
	for _, prog := range progs {
		prog := prog
		t.Run(filepath.Base(prog), func(t *testing.T) {
			g, err := os.Open(strings.TrimSuffix(prog, ".c") + ".golden")
			testutil.FatalIfErr(t, err)
			defer g.Close()
			want, err := golden.ReadTestData(g, prog)
			testutil.FatalIfErr(t, err)

			f, err := os.Open(prog)
			testutil.FatalIfErr(t, err)
			defer f.Close()
			var out bytes.Buffer
			r, err := New(Stdout(&out), HeapSize(1<<16))
			testutil.FatalIfErr(t, err)
			code, err := r.CompileAndRun(context.Background(), want.Program, f, want.Args)
			testutil.FatalIfErr(t, err)
			testutil.ExpectNoDiff(t, want, &golden.Result{Program: want.Program, Args: want.Args, Exit: code, Output: out.String()})
		})
	}
}

func TestCatWithoutFile(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "cat.c"))
	testutil.FatalIfErr(t, err)
	for _, tc := range []struct {
		args []string
		code int
		out  string
	}{
		{nil, 1, "usage: cat file\n"},
		{[]string{"/nonexistent"}, 2, "could not open(/nonexistent)\n"},
	} {
		code, out, err := run(t, string(src), tc.args)
		testutil.FatalIfErr(t, err)
		testutil.ExpectNoDiff(t, tc.code, code)
		testutil.ExpectNoDiff(t, tc.out, out)
	}
}

func TestCompileOnly(t *testing.T) {
	code, out, err := run(t, `int main() { printf("ran\n"); return 9; }`, nil, CompileOnly())
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, 0, code)
	testutil.ExpectNoDiff(t, "", out)
}

func TestListing(t *testing.T) {
	var listing bytes.Buffer
	code, _, err := run(t, "int main() {\n  return 7;\n}\n", nil, Listing(&listing))
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, 7, code)
	testutil.ExpectNoDiff(t, `   1 | int main() {
   2 |   return 7;
0x00000 (0x08000000):	ENT  0x0
0x00002 (0x08000003):	IMM  0x7
0x00004 (0x08000008):	LEV
   3 | }
0x00005 (0x0800000c):	LEV
`, listing.String())
}

func TestStdin(t *testing.T) {
	code, out, err := run(t, `
int main() {
  char *buf;
  int n;
  buf = malloc(8);
  n = read(0, buf, 7);
  buf[n] = 0;
  printf("[%s]", buf);
  return n;
}`, nil, Stdin(strings.NewReader("input")))
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, 5, code)
	testutil.ExpectNoDiff(t, "[input]", out)
}

func TestPrometheusRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, _, err := run(t, `int main() { printf("x"); return 0; }`, nil, PrometheusRegisterer(reg))
	testutil.FatalIfErr(t, err)
	mfs, err := reg.Gather()
	testutil.FatalIfErr(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"c4jit_compile_phase_duration_seconds",
		"c4jit_native_code_bytes",
		"c4jit_instructions_executed_total",
		"c4jit_host_calls_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered; have %v", want, names)
		}
	}
}

func TestBadOptions(t *testing.T) {
	_, err := New(HeapSize(-1))
	testutil.ExpectErrorContains(t, err, "heap size must not be negative")
}
