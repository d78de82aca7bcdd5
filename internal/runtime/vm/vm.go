// Copyright 2011 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

// Package vm provides the 32-bit x86 machine that generated code runs on.
// It decodes and executes the IA-32 encodings found in memory, and hands
// control to Go functions when execution reaches a bound trap address.
package vm

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// InstructionsExecuted counts the machine instructions executed.
	InstructionsExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "c4jit",
		Name:      "instructions_executed_total",
		Help:      "Number of machine instructions executed by compiled programs.",
	})
	// HostCalls counts calls into host functions, by trap address.
	HostCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "c4jit",
		Name:      "host_calls_total",
		Help:      "Number of library calls made by compiled programs.",
	}, []string{"function"})
)

// ErrStepLimit is returned by Run when MaxSteps instructions have executed.
var ErrStepLimit = errors.New("instruction limit exceeded")

// HostFunc implements a function called through a trap address.  Its
// arguments are on the stack above the return address; the result is
// returned in %eax.
type HostFunc func(c *CPU) (uint32, error)

type trap struct {
	name string
	fn   HostFunc
}

// decodeCacheSize bounds the number of decoded instructions kept.
const decodeCacheSize = 4096

// cancelCheckInterval is the number of steps between context checks.
const cancelCheckInterval = 1 << 14

// CPU is the processor state: the general registers, the instruction
// pointer, and the arithmetic flags.
type CPU struct {
	Regs [8]uint32
	EIP  uint32

	CF, ZF, SF, OF, PF bool

	Mem *Memory

	// MaxSteps stops Run after this many instructions when nonzero.
	MaxSteps uint64
	// Steps is the number of instructions executed.
	Steps uint64

	cur     uint32 // Address of the instruction executing.
	traps   map[uint32]trap
	decoded *lru.Cache // Decoded instructions by address.
	halted  bool
}

// New creates a CPU on the given memory.
func New(mem *Memory) *CPU {
	c := &CPU{
		Mem:     mem,
		traps:   make(map[uint32]trap),
		decoded: lru.New(decodeCacheSize),
	}
	mem.OnExecWrite = c.decoded.Clear
	return c
}

// Bind makes execution at addr call fn.
func (c *CPU) Bind(addr uint32, name string, fn HostFunc) {
	c.traps[addr] = trap{name, fn}
}

// Arg returns word argument i of a host function call.
func (c *CPU) Arg(i int) (uint32, error) {
	return c.Mem.Read32(c.Regs[ESP] + 4 + 4*uint32(i))
}

// Halted reports whether execution returned to HaltAddr.
func (c *CPU) Halted() bool {
	return c.halted
}

func (c *CPU) push(v uint32) error {
	sp := c.Regs[ESP] - 4
	if err := c.Mem.Write32(sp, v); err != nil {
		return err
	}
	c.Regs[ESP] = sp
	return nil
}

func (c *CPU) pop() (uint32, error) {
	v, err := c.Mem.Read32(c.Regs[ESP])
	if err != nil {
		return 0, err
	}
	c.Regs[ESP] += 4
	return v, nil
}

// Call runs the function at entry with args pushed in the order given, and
// returns %eax when the function returns.
func (c *CPU) Call(ctx context.Context, entry uint32, args ...uint32) (uint32, error) {
	c.Regs[ESP] = StackTop
	c.Regs[EBP] = 0
	for _, a := range args {
		if err := c.push(a); err != nil {
			return 0, err
		}
	}
	if err := c.push(HaltAddr); err != nil {
		return 0, err
	}
	c.EIP = entry
	c.halted = false
	if err := c.Run(ctx); err != nil {
		return 0, err
	}
	return c.Regs[EAX], nil
}

// Run executes instructions until the machine halts, an error occurs, or
// the context is cancelled.
func (c *CPU) Run(ctx context.Context) error {
	start := c.Steps
	defer func() {
		InstructionsExecuted.Add(float64(c.Steps - start))
	}()
	for !c.halted {
		if c.MaxSteps > 0 && c.Steps >= c.MaxSteps {
			return errors.Wrapf(ErrStepLimit, "after %d steps at eip 0x%08x", c.Steps, c.EIP)
		}
		if (c.Steps-start)%cancelCheckInterval == cancelCheckInterval-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction, or one host function call.
func (c *CPU) Step() error {
	if c.halted {
		return nil
	}
	if c.EIP == HaltAddr {
		c.halted = true
		return nil
	}
	eip := c.EIP
	if t, ok := c.traps[eip]; ok {
		return c.annotate(c.hostCall(t), eip)
	}
	var in *insn
	if v, ok := c.decoded.Get(eip); ok {
		in = v.(*insn)
	} else {
		var err error
		if in, err = decode(c.Mem, eip); err != nil {
			return c.annotate(err, eip)
		}
		c.decoded.Add(eip, in)
	}
	c.Steps++
	c.cur = eip
	c.EIP = eip + in.size
	if err := c.exec(in); err != nil {
		c.EIP = eip
		return c.annotate(err, eip)
	}
	return nil
}

func (c *CPU) hostCall(t trap) error {
	HostCalls.WithLabelValues(t.name).Inc()
	glog.V(2).Infof("host call %s from 0x%08x", t.name, c.returnAddr())
	v, err := t.fn(c)
	if err != nil {
		return err
	}
	c.Regs[EAX] = v
	ret, err := c.pop()
	if err != nil {
		return err
	}
	c.EIP = ret
	return nil
}

func (c *CPU) returnAddr() uint32 {
	v, _ := c.Mem.Read32(c.Regs[ESP])
	return v
}

// annotate records the instruction address in a fault.
func (c *CPU) annotate(err error, eip uint32) error {
	var f *Fault
	if errors.As(err, &f) {
		f.EIP = eip
		if glog.V(1) {
			glog.Infof("machine fault: %s\n%s", f, c)
		}
	}
	return err
}

// String dumps the register state.
func (c *CPU) String() string {
	var b strings.Builder
	for r := EAX; r <= EDI; r++ {
		fmt.Fprintf(&b, "%s=0x%08x ", r, c.Regs[r])
	}
	fmt.Fprintf(&b, "eip=0x%08x cf=%t zf=%t sf=%t of=%t", c.EIP, c.CF, c.ZF, c.SF, c.OF)
	return b.String()
}
