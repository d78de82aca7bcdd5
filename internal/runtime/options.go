// Copyright 2021 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package runtime

import (
	"io"

	"contrib.go.opencensus.io/exporter/jaeger"
	"github.com/google/c4jit/internal/runtime/compiler"
	"github.com/google/c4jit/internal/runtime/vm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/trace"
)

// Option configures a new program Runtime.
type Option func(*Runtime) error

// CompileOnly sets the Runtime to compile programs and generate their code, without executing them.
func CompileOnly() Option {
	return func(r *Runtime) error {
		r.compileOnly = true
		return nil
	}
}

// DumpBytecode instructs the compiler to log the bytecode after parsing.
func DumpBytecode() Option {
	return func(r *Runtime) error {
		r.cOpts = append(r.cOpts, compiler.EmitBytecode())
		return nil
	}
}

// Listing writes the source and native address of every instruction to w
// as code is generated.
func Listing(w io.Writer) Option {
	return func(r *Runtime) error {
		r.listing = w
		return nil
	}
}

// Stdout sets where printf writes.
func Stdout(w io.Writer) Option {
	return func(r *Runtime) error {
		r.stdout = w
		return nil
	}
}

// Stdin sets what reads of file descriptor 0 return.
func Stdin(rd io.Reader) Option {
	return func(r *Runtime) error {
		r.stdin = rd
		return nil
	}
}

// HeapSize sets the size in bytes of the arena malloc allocates from.
func HeapSize(n int) Option {
	return func(r *Runtime) error {
		if n < 0 {
			return errors.Errorf("heap size must not be negative, got %d", n)
		}
		r.heapSize = n
		return nil
	}
}

// MaxSteps stops programs after n machine instructions.  Zero means no limit.
func MaxSteps(n uint64) Option {
	return func(r *Runtime) error {
		r.maxSteps = n
		return nil
	}
}

// PrometheusRegisterer passes in a registry for setting up exported metrics.
func PrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runtime) error {
		r.reg = reg
		r.reg.MustRegister(PhaseDurations, NativeCodeBytes, vm.InstructionsExecuted, vm.HostCalls)
		return nil
	}
}

// JaegerReporter creates a new jaeger reporter that sends to the given Jaeger endpoint address.
func JaegerReporter(endpoint string) Option {
	return func(r *Runtime) error {
		je, err := jaeger.NewExporter(jaeger.Options{
			CollectorEndpoint: endpoint,
			Process: jaeger.Process{
				ServiceName: "c4jit",
			},
		})
		if err != nil {
			return err
		}
		trace.RegisterExporter(je)
		return nil
	}
}
