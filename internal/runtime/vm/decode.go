// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package vm

// Reg names a general purpose register by its encoding.
type Reg uint8

const (
	EAX Reg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regNames = [...]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "?"
}

const noReg Reg = 0xff

// operand is the r/m side of a ModRM encoding: a register, or a memory
// address computed from base + index*scale + disp.
type operand struct {
	direct bool
	reg    Reg // Register when direct.

	base, index Reg // noReg when absent.
	scale       uint32
	disp        uint32
}

// insn is a decoded instruction.  Two byte opcodes are 0x0f00|op.
type insn struct {
	op   uint16
	size uint32
	reg  Reg // ModRM reg field: a register or a group extension.
	rm   operand
	imm  uint32 // Immediate, or the branch displacement.
}

// Operand encodings.
const (
	hasModRM = 1 << iota
	hasImm8      // Sign extended.
	hasImm32
	hasImmGroup // F7 /0 carries an imm32, the rest of the group none.
)

var format [0x200]uint8

func init() {
	for op := 0; op < 0x40; op++ {
		switch op & 7 {
		case 1, 3:
			format[op] = hasModRM
		case 5:
			format[op] = hasImm32
		}
	}
	for _, op := range []uint16{0x84, 0x85, 0x87, 0x88, 0x89, 0x8a, 0x8b, 0x8d, 0xd1, 0xd3, 0xf7, 0xff,
		0x0fb6, 0x0fbe, 0x0faf} {
		format[index(op)] = hasModRM
	}
	format[0xf7] |= hasImmGroup
	format[0x81] = hasModRM | hasImm32
	format[0xc7] = hasModRM | hasImm32
	format[0x83] = hasModRM | hasImm8
	format[0xc1] = hasModRM | hasImm8
	format[0x68] = hasImm32
	format[0xa9] = hasImm32
	format[0xe8] = hasImm32
	format[0xe9] = hasImm32
	format[0x6a] = hasImm8
	format[0xeb] = hasImm8
	format[0xe2] = hasImm8
	for op := 0x70; op <= 0x7f; op++ {
		format[op] = hasImm8
	}
	for op := 0xb8; op <= 0xbf; op++ {
		format[op] = hasImm32
	}
	for cc := 0; cc < 16; cc++ {
		format[0x180|cc] = hasImm32
		format[0x190|cc] = hasModRM
	}
}

// index maps an opcode to its slot in the format table.
func index(op uint16) int {
	if op >= 0x0f00 {
		return 0x100 | int(op&0xff)
	}
	return int(op)
}

// decoder reads instruction bytes from memory.
type decoder struct {
	mem *Memory
	pc  uint32
	err error
}

func (d *decoder) byte() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.mem.Read8(d.pc)
	if err != nil {
		d.err = err
		return 0
	}
	d.pc++
	return b
}

func (d *decoder) imm8() uint32 {
	return uint32(int32(int8(d.byte())))
}

func (d *decoder) imm32() uint32 {
	v := uint32(d.byte())
	v |= uint32(d.byte()) << 8
	v |= uint32(d.byte()) << 16
	v |= uint32(d.byte()) << 24
	return v
}

// decode decodes the instruction at eip.
func decode(mem *Memory, eip uint32) (*insn, error) {
	d := &decoder{mem: mem, pc: eip}
	in := &insn{op: uint16(d.byte())}
	if in.op == 0x0f {
		in.op = 0x0f00 | uint16(d.byte())
	}
	if d.err != nil {
		return nil, d.err
	}
	f := format[index(in.op)]
	if f&hasModRM != 0 {
		d.modRM(in)
	}
	switch {
	case f&hasImm8 != 0:
		in.imm = d.imm8()
	case f&hasImm32 != 0:
		in.imm = d.imm32()
	case f&hasImmGroup != 0 && in.reg == 0:
		in.imm = d.imm32()
	}
	if d.err != nil {
		return nil, d.err
	}
	in.size = d.pc - eip
	return in, nil
}

// modRM decodes the 32-bit ModRM byte and any SIB byte and displacement.
func (d *decoder) modRM(in *insn) {
	b := d.byte()
	mod, rm := b>>6, Reg(b&7)
	in.reg = Reg(b>>3) & 7
	if mod == 3 {
		in.rm = operand{direct: true, reg: rm}
		return
	}
	o := operand{base: rm, index: noReg, scale: 1}
	if rm == ESP {
		sib := d.byte()
		o.scale = 1 << (sib >> 6)
		if i := Reg(sib>>3) & 7; i != ESP {
			o.index = i
		}
		o.base = Reg(sib & 7)
		if o.base == EBP && mod == 0 {
			o.base = noReg
			o.disp = d.imm32()
		}
	} else if rm == EBP && mod == 0 {
		o.base = noReg
		o.disp = d.imm32()
	}
	switch mod {
	case 1:
		o.disp = d.imm8()
	case 2:
		o.disp = d.imm32()
	}
	in.rm = o
}
