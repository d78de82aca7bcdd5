// Copyright 2015 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package runtime compiles a program, generates and relocates its native
// code, lays out the machine's memory, and runs the entry function.
package runtime

import (
	"context"
	"expvar"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime/code"
	"github.com/google/c4jit/internal/runtime/compiler"
	"github.com/google/c4jit/internal/runtime/compiler/codegen"
	"github.com/google/c4jit/internal/runtime/host"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/trace"
)

var (
	// ProgLoads counts the number of programs compiled.
	ProgLoads = expvar.NewMap("prog_loads_total")
	// ProgLoadErrors counts the number of programs that failed to compile.
	ProgLoadErrors = expvar.NewMap("prog_load_errors_total")

	// PhaseDurations records the time spent in each phase of a run.
	PhaseDurations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "c4jit",
		Name:      "compile_phase_duration_seconds",
		Help:      "Time spent compiling, generating code for, and running programs.",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{"phase"})
	// NativeCodeBytes records the size of the generated machine code.
	NativeCodeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "c4jit",
		Name:      "native_code_bytes",
		Help:      "Size of the machine code generated for each program.",
		Buckets:   prometheus.ExponentialBuckets(16, 4, 9),
	})
)

const (
	// DefaultHeapSize is the size of the malloc arena.
	DefaultHeapSize = 16 << 20
)

// Runtime compiles and runs programs.
type Runtime struct {
	cOpts []compiler.Option // options for constructing `c`
	c     *compiler.Compiler

	poolSize int // Size of the code and data areas.
	heapSize int
	maxSteps uint64

	stdout io.Writer
	stdin  io.Reader

	listing     io.Writer // Native code listing destination, if any.
	compileOnly bool      // Generate code but do not run it.

	reg prometheus.Registerer
}

// New creates a Runtime.
func New(options ...Option) (*Runtime, error) {
	r := &Runtime{
		poolSize: compiler.DefaultPoolSize,
		heapSize: DefaultHeapSize,
		stdout:   os.Stdout,
		stdin:    os.Stdin,
	}
	if err := r.SetOption(options...); err != nil {
		return nil, err
	}
	var err error
	cOpts := append([]compiler.Option{compiler.DataBase(vm.DataBase), compiler.PoolSize(r.poolSize)}, r.cOpts...)
	if r.c, err = compiler.New(cOpts...); err != nil {
		return nil, err
	}
	return r, nil
}

// SetOption takes one or more option functions and applies them in order to Runtime.
func (r *Runtime) SetOption(options ...Option) error {
	for _, option := range options {
		if err := option(r); err != nil {
			return err
		}
	}
	return nil
}

// phase runs f as the named phase of a run, timing and tracing it.
func phase(ctx context.Context, name string, f func(ctx context.Context) error) error {
	ctx, span := trace.StartSpan(ctx, name)
	defer span.End()
	start := time.Now()
	err := f(ctx)
	PhaseDurations.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
	}
	return err
}

// CompileAndRun compiles the program read from input and runs its main
// function with argv set to name followed by args.  It returns the value
// main returns, or the code passed to exit.  Compile, setup, and runtime
// errors return -1 with the error.
func (r *Runtime) CompileAndRun(ctx context.Context, name string, input io.Reader, args []string) (int, error) {
	ctx, span := trace.StartSpan(ctx, "Runtime.CompileAndRun")
	defer span.End()
	glog.V(2).Infof("CompileAndRun %s", name)

	var obj *code.Object
	err := phase(ctx, "parse", func(context.Context) (err error) {
		obj, err = r.c.Compile(name, input)
		return err
	})
	if err != nil {
		ProgLoadErrors.Add(name, 1)
		return -1, errors.Wrapf(err, "compile failed for %s", name)
	}
	ProgLoads.Add(name, 1)

	p, err := r.load(obj)
	if err != nil {
		return -1, err
	}
	defer p.close()

	var img *codegen.Image
	err = phase(ctx, "codegen", func(context.Context) (err error) {
		var opts []codegen.Option
		if r.listing != nil {
			opts = append(opts, codegen.Listing(r.listing))
		}
		img, err = codegen.Generate(obj, p.region.Data, vm.CodeBase, p.host, opts...)
		return err
	})
	if err != nil {
		return -1, err
	}
	NativeCodeBytes.Observe(float64(len(img.Code())))
	if err := phase(ctx, "relocate", func(context.Context) error { return img.Relocate() }); err != nil {
		return -1, err
	}
	glog.Infof("Loaded program %s: %d bytes of native code", name, len(img.Code()))
	if r.compileOnly {
		return 0, nil
	}

	var result uint32
	err = phase(ctx, "execute", func(ctx context.Context) error {
		argv, err := p.host.Args(append([]string{name}, args...))
		if err != nil {
			return err
		}
		result, err = p.cpu.Call(ctx, img.Entry, uint32(len(args)+1), argv)
		return err
	})
	if err != nil {
		var exit *vm.Exit
		if errors.As(err, &exit) {
			glog.V(1).Infof("%s called %s", name, exit)
			return exit.Code, nil
		}
		return -1, errors.Wrapf(err, "%s", name)
	}
	return int(int32(result)), nil
}

// process is the machine a program runs on.
type process struct {
	region *vm.Region
	mem    *vm.Memory
	cpu    *vm.CPU
	host   *host.Host
}

// load maps the code, data, heap, and stack segments for obj.
func (r *Runtime) load(obj *code.Object) (*process, error) {
	region, err := vm.MapExecutable(r.poolSize)
	if err != nil {
		return nil, err
	}
	p := &process{region: region, mem: &vm.Memory{}}
	data := make([]byte, r.poolSize)
	copy(data, obj.Data)
	heap := &vm.Segment{Name: "heap", Base: vm.HeapBase, Data: make([]byte, r.heapSize)}
	for _, s := range []*vm.Segment{
		{Name: "code", Base: vm.CodeBase, Data: region.Data, Exec: true},
		{Name: "data", Base: vm.DataBase, Data: data},
		heap,
		{Name: "stack", Base: vm.StackTop - vm.StackSize, Data: make([]byte, vm.StackSize)},
	} {
		if err := p.mem.Map(s); err != nil {
			p.close()
			return nil, err
		}
	}
	p.cpu = vm.New(p.mem)
	p.cpu.MaxSteps = r.maxSteps
	p.host = host.New(p.mem, heap, r.stdout, r.stdin)
	p.host.Bind(p.cpu)
	return p, nil
}

func (p *process) close() {
	if p.host != nil {
		if err := p.host.Close(); err != nil {
			glog.Warning(err)
		}
	}
	if err := p.region.Unmap(); err != nil {
		glog.Warning(err)
	}
}
