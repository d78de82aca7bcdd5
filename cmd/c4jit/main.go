// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// c4jit compiles a C program to x86 machine code and runs its main function.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/google/c4jit/internal/runtime"
	"github.com/google/c4jit/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opencensus.io/trace"
)

var (
	listing = flag.Bool("s", false, "Print each source line, its bytecode, and the native address of every instruction to standard output.")

	version = flag.Bool("version", false, "Print c4jit version information.")

	// Compiler behaviour flags.
	compileOnly  = flag.Bool("compile_only", false, "Compile the program and generate its code, but do not run it.")
	dumpBytecode = flag.Bool("dump_bytecode", false, "Dump bytecode of the program (to INFO log).")

	// Machine behaviour flags.
	heapSize = flag.Int("heap_size", runtime.DefaultHeapSize, "Size in bytes of the heap malloc allocates from.")
	maxSteps = flag.Uint64("max_steps", 0, "Stop the program after this many machine instructions.  0 means no limit.")

	// Ops flags.
	watch       = flag.Bool("watch", false, "Run the program again each time the source file changes, until interrupted.")
	dumpMetrics = flag.Bool("dump_metrics", false, "Print the collected metrics in Prometheus text format to standard error on exit.")

	// Tracing.
	jaegerEndpoint    = flag.String("jaeger_endpoint", "", "If set, collector endpoint URL of jaeger thrift service")
	traceSamplePeriod = flag.Int("trace_sample_period", 0, "Sample period for traces.  If non-zero, every nth trace will be sampled.")
)

var (
	// Branch as well as Version and Revision identifies where in the git
	// history the build came from, as supplied by the linker when compiled
	// with `make'.  The defaults here indicate that the user did not use
	// `make' as instructed.
	Branch   = "invalid:-use-make-to-build"
	Version  = "invalid:-use-make-to-build"
	Revision = "invalid:-use-make-to-build"
)

func main() {
	buildInfo := runtime.BuildInfo{
		Branch:   Branch,
		Version:  Version,
		Revision: Revision,
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n", buildInfo.String())
		fmt.Fprintf(os.Stderr, "\nusage: c4jit [-s] file ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *version {
		fmt.Println(buildInfo.String())
		os.Exit(0)
	}
	glog.Info(buildInfo.String())
	glog.Infof("Commandline: %q", os.Args)
	if flag.NArg() < 1 {
		fmt.Println("usage: c4jit [-s] file ...")
		os.Exit(-1)
	}
	os.Exit(run(flag.Arg(0), flag.Args()[1:]))
}

func run(path string, args []string) int {
	if *traceSamplePeriod > 0 {
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(1 / float64(*traceSamplePeriod))})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigint
		glog.Infof("Received %+v, exiting...", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	opts := []runtime.Option{
		runtime.HeapSize(*heapSize),
		runtime.MaxSteps(*maxSteps),
		runtime.PrometheusRegisterer(reg),
	}
	if *listing {
		opts = append(opts, runtime.Listing(os.Stdout))
	}
	if *compileOnly {
		opts = append(opts, runtime.CompileOnly())
	}
	if *dumpBytecode {
		opts = append(opts, runtime.DumpBytecode())
	}
	if *jaegerEndpoint != "" {
		opts = append(opts, runtime.JaegerReporter(*jaegerEndpoint))
	}
	r, err := runtime.New(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return -1
	}
	if *dumpMetrics {
		defer writeMetrics(reg)
	}

	code := compileAndRun(ctx, r, path, args)
	if !*watch {
		return code
	}
	w, err := watcher.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return -1
	}
	err = w.Watch(ctx, path, watcher.ProcessorFunc(func(ctx context.Context, e watcher.Event) {
		if e.Op == watcher.Delete {
			glog.Infof("%s was removed; waiting for it to return", e.Pathname)
			return
		}
		code = compileAndRun(ctx, r, path, args)
	}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return -1
	}
	return code
}

// compileAndRun runs the program at path once, reporting errors on
// standard error.
func compileAndRun(ctx context.Context, r *runtime.Runtime, path string, args []string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open(%s)\n", path)
		return -1
	}
	defer f.Close()
	code, err := r.CompileAndRun(ctx, path, f, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	glog.Infof("%s exited with status %d", path, code)
	return code
}

func writeMetrics(g prometheus.Gatherer) {
	mfs, err := g.Gather()
	if err != nil {
		glog.Error(err)
		return
	}
	enc := expfmt.NewEncoder(os.Stderr, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			glog.Error(err)
			return
		}
	}
}
