// Copyright 2020 Google Inc. All Rights Reserved.
// This file is available under the Apache license.

package vm

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// A Segment is a contiguous range of the address space backed by Data.
type Segment struct {
	Name string
	Base uint32
	Data []byte
	Exec bool // Holds code; writes invalidate decoded instructions.
}

// End returns the first address past the segment.
func (s *Segment) End() uint64 {
	return uint64(s.Base) + uint64(len(s.Data))
}

func (s *Segment) contains(addr uint32, n int) bool {
	return addr >= s.Base && uint64(addr)+uint64(n) <= s.End()
}

// Memory is a sparse 32-bit address space made of segments.  An access
// that is not entirely inside one segment faults.
type Memory struct {
	segs []*Segment // Sorted by Base.
	last *Segment   // Most recently accessed.

	// OnExecWrite is called after a write into an Exec segment.
	OnExecWrite func()
}

// Map adds a segment to the address space.
func (m *Memory) Map(s *Segment) error {
	if len(s.Data) == 0 {
		return errors.Errorf("segment %s is empty", s.Name)
	}
	if s.End() > 1<<32 {
		return errors.Errorf("segment %s wraps the address space", s.Name)
	}
	for _, o := range m.segs {
		if uint64(s.Base) < o.End() && uint64(o.Base) < s.End() {
			return errors.Errorf("segment %s at 0x%08x overlaps %s at 0x%08x", s.Name, s.Base, o.Name, o.Base)
		}
	}
	m.segs = append(m.segs, s)
	sort.Slice(m.segs, func(i, j int) bool { return m.segs[i].Base < m.segs[j].Base })
	return nil
}

// Segment returns the segment named name, or nil.
func (m *Memory) Segment(name string) *Segment {
	for _, s := range m.segs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (m *Memory) locate(addr uint32, n int) (*Segment, []byte, error) {
	s := m.last
	if s == nil || !s.contains(addr, n) {
		i := sort.Search(len(m.segs), func(i int) bool { return m.segs[i].End() > uint64(addr) })
		if i == len(m.segs) || !m.segs[i].contains(addr, n) {
			return nil, nil, &Fault{Reason: "segmentation fault", Addr: addr}
		}
		s = m.segs[i]
		m.last = s
	}
	off := addr - s.Base
	return s, s.Data[off : off+uint32(n)], nil
}

func (m *Memory) written(s *Segment) {
	if s.Exec && m.OnExecWrite != nil {
		m.OnExecWrite()
	}
}

// Read8 reads the byte at addr.
func (m *Memory) Read8(addr uint32) (uint8, error) {
	_, b, err := m.locate(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read32 reads the little endian word at addr.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	_, b, err := m.locate(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Write8 stores a byte at addr.
func (m *Memory) Write8(addr uint32, v uint8) error {
	s, b, err := m.locate(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	m.written(s)
	return nil
}

// Write32 stores a little endian word at addr.
func (m *Memory) Write32(addr uint32, v uint32) error {
	s, b, err := m.locate(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	m.written(s)
	return nil
}

// Slice returns the n bytes at addr, aliasing the segment.
func (m *Memory) Slice(addr uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, &Fault{Reason: "negative length", Addr: addr}
	}
	if n == 0 {
		return nil, nil
	}
	s, b, err := m.locate(addr, n)
	if err != nil {
		return nil, err
	}
	m.written(s)
	return b, nil
}

// Load copies data into memory at addr.
func (m *Memory) Load(addr uint32, data []byte) error {
	b, err := m.Slice(addr, len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

// CString returns the NUL terminated string at addr.
func (m *Memory) CString(addr uint32) (string, error) {
	s, _, err := m.locate(addr, 1)
	if err != nil {
		return "", err
	}
	rest := s.Data[addr-s.Base:]
	for i, c := range rest {
		if c == 0 {
			return string(rest[:i]), nil
		}
	}
	return "", &Fault{Reason: "unterminated string", Addr: addr}
}
