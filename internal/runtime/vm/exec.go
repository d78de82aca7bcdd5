// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package vm

import "math/bits"

// Arithmetic group operations, in ModRM extension order.
const (
	aluAdd = iota
	aluOr
	aluAdc
	aluSbb
	aluAnd
	aluSub
	aluXor
	aluCmp
)

func (c *CPU) illegal() error {
	return &Fault{Reason: "illegal instruction", Addr: c.cur}
}

func (c *CPU) ea(o *operand) uint32 {
	a := o.disp
	if o.base != noReg {
		a += c.Regs[o.base]
	}
	if o.index != noReg {
		a += c.Regs[o.index] * o.scale
	}
	return a
}

func (c *CPU) rm32(o *operand) (uint32, error) {
	if o.direct {
		return c.Regs[o.reg], nil
	}
	return c.Mem.Read32(c.ea(o))
}

func (c *CPU) setRM32(o *operand, v uint32) error {
	if o.direct {
		c.Regs[o.reg] = v
		return nil
	}
	return c.Mem.Write32(c.ea(o), v)
}

// reg8 reads a byte register: al cl dl bl, then ah ch dh bh.
func (c *CPU) reg8(r Reg) uint8 {
	if r < 4 {
		return uint8(c.Regs[r])
	}
	return uint8(c.Regs[r-4] >> 8)
}

func (c *CPU) setReg8(r Reg, v uint8) {
	if r < 4 {
		c.Regs[r] = c.Regs[r]&^0xff | uint32(v)
		return
	}
	c.Regs[r-4] = c.Regs[r-4]&^0xff00 | uint32(v)<<8
}

func (c *CPU) rm8(o *operand) (uint8, error) {
	if o.direct {
		return c.reg8(o.reg), nil
	}
	return c.Mem.Read8(c.ea(o))
}

func (c *CPU) setRM8(o *operand, v uint8) error {
	if o.direct {
		c.setReg8(o.reg, v)
		return nil
	}
	return c.Mem.Write8(c.ea(o), v)
}

func (c *CPU) setResult(v uint32) {
	c.ZF = v == 0
	c.SF = int32(v) < 0
	c.PF = bits.OnesCount8(uint8(v))%2 == 0
}

// alu computes a group one operation and sets the flags.  The result is
// not stored for cmp.
func (c *CPU) alu(op int, a, b uint32) (uint32, bool) {
	var r uint32
	switch op {
	case aluAdd, aluAdc:
		carry := uint32(0)
		if op == aluAdc && c.CF {
			carry = 1
		}
		var carryOut uint32
		r, carryOut = bits.Add32(a, b, carry)
		c.CF = carryOut != 0
		c.OF = (a^r)&(b^r)&0x80000000 != 0
	case aluSub, aluSbb, aluCmp:
		borrow := uint32(0)
		if op == aluSbb && c.CF {
			borrow = 1
		}
		var borrowOut uint32
		r, borrowOut = bits.Sub32(a, b, borrow)
		c.CF = borrowOut != 0
		c.OF = (a^b)&(a^r)&0x80000000 != 0
	case aluOr:
		r = a | b
		c.CF, c.OF = false, false
	case aluAnd:
		r = a & b
		c.CF, c.OF = false, false
	case aluXor:
		r = a ^ b
		c.CF, c.OF = false, false
	}
	c.setResult(r)
	return r, op != aluCmp
}

// cond evaluates a condition code nibble.
func (c *CPU) cond(cc uint8) bool {
	var r bool
	switch cc >> 1 {
	case 0:
		r = c.OF
	case 1:
		r = c.CF
	case 2:
		r = c.ZF
	case 3:
		r = c.CF || c.ZF
	case 4:
		r = c.SF
	case 5:
		r = c.PF
	case 6:
		r = c.SF != c.OF
	case 7:
		r = c.ZF || c.SF != c.OF
	}
	if cc&1 != 0 {
		return !r
	}
	return r
}

// shift executes the C1, D1, and D3 groups.
func (c *CPU) shift(ext Reg, v uint32, n uint32) (uint32, error) {
	n &= 31
	if n == 0 {
		return v, nil
	}
	var r uint32
	switch ext {
	case 4, 6: // shl, sal
		r = v << n
		c.CF = (v>>(32-n))&1 != 0
		c.OF = (r>>31 != 0) != c.CF
	case 5: // shr
		r = v >> n
		c.CF = (v>>(n-1))&1 != 0
		c.OF = v>>31 != 0
	case 7: // sar
		r = uint32(int32(v) >> n)
		c.CF = (uint32(int32(v)>>(n-1)))&1 != 0
		c.OF = false
	case 0: // rol
		r = bits.RotateLeft32(v, int(n))
		c.CF = r&1 != 0
		return r, nil
	case 1: // ror
		r = bits.RotateLeft32(v, -int(n))
		c.CF = r>>31 != 0
		return r, nil
	default:
		return 0, c.illegal()
	}
	c.setResult(r)
	return r, nil
}

func (c *CPU) divideError() error {
	return &Fault{Reason: "divide error", Addr: c.cur}
}

// group3 executes the F7 group: test, not, neg, mul, imul, div, idiv.
func (c *CPU) group3(in *insn) error {
	v, err := c.rm32(&in.rm)
	if err != nil {
		return err
	}
	switch in.reg {
	case 0:
		c.alu(aluAnd, v, in.imm)
	case 2:
		return c.setRM32(&in.rm, ^v)
	case 3:
		r, _ := c.alu(aluSub, 0, v)
		return c.setRM32(&in.rm, r)
	case 4:
		hi, lo := bits.Mul32(c.Regs[EAX], v)
		c.Regs[EAX], c.Regs[EDX] = lo, hi
		c.CF = hi != 0
		c.OF = c.CF
	case 5:
		p := int64(int32(c.Regs[EAX])) * int64(int32(v))
		c.Regs[EAX], c.Regs[EDX] = uint32(p), uint32(p>>32)
		c.CF = p != int64(int32(p))
		c.OF = c.CF
	case 6:
		if v == 0 || c.Regs[EDX] >= v {
			return c.divideError()
		}
		q, r := bits.Div32(c.Regs[EDX], c.Regs[EAX], v)
		c.Regs[EAX], c.Regs[EDX] = q, r
	case 7:
		d := int64(int32(v))
		n := int64(uint64(c.Regs[EDX])<<32 | uint64(c.Regs[EAX]))
		if d == 0 {
			return c.divideError()
		}
		q := n / d
		if q != int64(int32(q)) {
			return c.divideError()
		}
		c.Regs[EAX], c.Regs[EDX] = uint32(q), uint32(n%d)
	default:
		return c.illegal()
	}
	return nil
}

// group5 executes the FF group: inc, dec, call, jmp, push.
func (c *CPU) group5(in *insn) error {
	v, err := c.rm32(&in.rm)
	if err != nil {
		return err
	}
	switch in.reg {
	case 0, 1:
		cf := c.CF
		op := aluAdd
		if in.reg == 1 {
			op = aluSub
		}
		r, _ := c.alu(op, v, 1)
		c.CF = cf
		return c.setRM32(&in.rm, r)
	case 2:
		if err := c.push(c.EIP); err != nil {
			return err
		}
		c.EIP = v
	case 4:
		c.EIP = v
	case 6:
		return c.push(v)
	default:
		return c.illegal()
	}
	return nil
}

// exec executes a decoded instruction.  EIP already addresses the next
// instruction.
func (c *CPU) exec(in *insn) error {
	op := in.op
	switch {
	case op < 0x40 && (op&7 == 1 || op&7 == 3 || op&7 == 5):
		aop := int(op >> 3)
		switch op & 7 {
		case 1: // op r32,r/m32
			a, err := c.rm32(&in.rm)
			if err != nil {
				return err
			}
			if r, store := c.alu(aop, a, c.Regs[in.reg]); store {
				return c.setRM32(&in.rm, r)
			}
		case 3: // op r/m32,r32
			b, err := c.rm32(&in.rm)
			if err != nil {
				return err
			}
			if r, store := c.alu(aop, c.Regs[in.reg], b); store {
				c.Regs[in.reg] = r
			}
		case 5: // op imm32,%eax
			if r, store := c.alu(aop, c.Regs[EAX], in.imm); store {
				c.Regs[EAX] = r
			}
		}
		return nil

	case op >= 0x40 && op <= 0x4f: // inc, dec
		r := Reg(op & 7)
		cf := c.CF
		aop := aluAdd
		if op >= 0x48 {
			aop = aluSub
		}
		c.Regs[r], _ = c.alu(aop, c.Regs[r], 1)
		c.CF = cf
		return nil

	case op >= 0x50 && op <= 0x57:
		return c.push(c.Regs[op&7])

	case op >= 0x58 && op <= 0x5f:
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.Regs[op&7] = v
		return nil

	case op == 0x68, op == 0x6a:
		return c.push(in.imm)

	case op >= 0x70 && op <= 0x7f:
		if c.cond(uint8(op & 0xf)) {
			c.EIP += in.imm
		}
		return nil

	case op == 0x81, op == 0x83:
		a, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		if r, store := c.alu(int(in.reg), a, in.imm); store {
			return c.setRM32(&in.rm, r)
		}
		return nil

	case op == 0x84:
		a, err := c.rm8(&in.rm)
		if err != nil {
			return err
		}
		r := a & c.reg8(in.reg)
		c.CF, c.OF = false, false
		c.ZF = r == 0
		c.SF = r&0x80 != 0
		c.PF = bits.OnesCount8(r)%2 == 0
		return nil

	case op == 0x85:
		a, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		c.alu(aluAnd, a, c.Regs[in.reg])
		return nil

	case op == 0x87:
		a, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		b := c.Regs[in.reg]
		if err := c.setRM32(&in.rm, b); err != nil {
			return err
		}
		c.Regs[in.reg] = a
		return nil

	case op == 0x88:
		return c.setRM8(&in.rm, c.reg8(in.reg))

	case op == 0x89:
		return c.setRM32(&in.rm, c.Regs[in.reg])

	case op == 0x8a:
		v, err := c.rm8(&in.rm)
		if err != nil {
			return err
		}
		c.setReg8(in.reg, v)
		return nil

	case op == 0x8b:
		v, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		c.Regs[in.reg] = v
		return nil

	case op == 0x8d:
		if in.rm.direct {
			return c.illegal()
		}
		c.Regs[in.reg] = c.ea(&in.rm)
		return nil

	case op >= 0x90 && op <= 0x97: // xchg %eax,r; 0x90 is nop
		r := op & 7
		c.Regs[EAX], c.Regs[r] = c.Regs[r], c.Regs[EAX]
		return nil

	case op == 0x98: // cwtl
		c.Regs[EAX] = uint32(int32(int16(c.Regs[EAX])))
		return nil

	case op == 0x99: // cltd
		c.Regs[EDX] = uint32(int32(c.Regs[EAX]) >> 31)
		return nil

	case op == 0xa9:
		c.alu(aluAnd, c.Regs[EAX], in.imm)
		return nil

	case op >= 0xb8 && op <= 0xbf:
		c.Regs[op&7] = in.imm
		return nil

	case op == 0xc1, op == 0xd1, op == 0xd3:
		v, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		n := in.imm
		switch op {
		case 0xd1:
			n = 1
		case 0xd3:
			n = c.Regs[ECX]
		}
		r, err := c.shift(in.reg, v, n)
		if err != nil {
			return err
		}
		return c.setRM32(&in.rm, r)

	case op == 0xc3:
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.EIP = v
		return nil

	case op == 0xc7:
		if in.reg != 0 {
			return c.illegal()
		}
		return c.setRM32(&in.rm, in.imm)

	case op == 0xe2: // loop
		c.Regs[ECX]--
		if c.Regs[ECX] != 0 {
			c.EIP += in.imm
		}
		return nil

	case op == 0xe8:
		if err := c.push(c.EIP); err != nil {
			return err
		}
		c.EIP += in.imm
		return nil

	case op == 0xe9, op == 0xeb:
		c.EIP += in.imm
		return nil

	case op == 0xf7:
		return c.group3(in)

	case op == 0xff:
		return c.group5(in)

	case op >= 0x0f80 && op <= 0x0f8f:
		if c.cond(uint8(op & 0xf)) {
			c.EIP += in.imm
		}
		return nil

	case op >= 0x0f90 && op <= 0x0f9f:
		var v uint8
		if c.cond(uint8(op & 0xf)) {
			v = 1
		}
		return c.setRM8(&in.rm, v)

	case op == 0x0faf:
		b, err := c.rm32(&in.rm)
		if err != nil {
			return err
		}
		p := int64(int32(c.Regs[in.reg])) * int64(int32(b))
		c.Regs[in.reg] = uint32(p)
		c.CF = p != int64(int32(p))
		c.OF = c.CF
		return nil

	case op == 0x0fb6, op == 0x0fbe:
		v, err := c.rm8(&in.rm)
		if err != nil {
			return err
		}
		if op == 0x0fbe {
			c.Regs[in.reg] = uint32(int32(int8(v)))
		} else {
			c.Regs[in.reg] = uint32(v)
		}
		return nil
	}
	return c.illegal()
}
