package compiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/mna/pex/lang/ir"
)

// Magic is the bytecode file format's 4-byte magic number (spec §6.3),
// encoded big-endian in the header as 0x50455842 ("PEXB").
const Magic uint32 = 0x50455842

const (
	flagDebugInfo = 0x01
)

// ReadError is a bytecode-read error (spec §7): magic mismatch, bad
// version, truncated data, invalid UTF-8, invalid entry point, an
// out-of-bounds code range, an unknown constant tag, or trailing bytes.
type ReadError struct{ Msg string }

func (e *ReadError) Error() string { return e.Msg }

func readErrorf(format string, args ...interface{}) error {
	return &ReadError{Msg: fmt.Sprintf(format, args...)}
}

// Encode serializes p to the little-endian binary format of spec §6.3. This
// persistence layer is optional: the core never requires it, only run() and
// compile() do (spec §1 Non-goals).
func Encode(p *Program) []byte {
	var buf []byte
	buf = appendU32BE(buf, Magic)
	buf = append(buf, byte(Version>>8), byte(Version))
	buf = append(buf, 0) // flags: no debug info emitted
	buf = append(buf, 0) // reserved
	buf = appendU32(buf, 0)
	buf = appendU32(buf, 0) // reserved

	buf = appendU32(buf, uint32(len(p.Constants)))
	for _, k := range p.Constants {
		buf = appendConstant(buf, k.Value)
	}

	buf = appendU32(buf, uint32(len(p.Names)))
	for _, n := range p.Names {
		buf = appendString(buf, n)
	}

	buf = appendU32(buf, uint32(len(p.Templates)))
	for _, t := range p.Templates {
		buf = appendU32(buf, uint32(int32ToU32(t.NameIndex)))
		buf = appendU32(buf, t.ParamCount)
		buf = appendU32(buf, t.LocalCount)
		buf = appendU32(buf, uint32(len(t.Upvalues)))
		for _, u := range t.Upvalues {
			isLocal := byte(0)
			if u.IsLocal {
				isLocal = 1
			}
			buf = append(buf, isLocal)
			buf = appendU32(buf, u.Index)
		}
		buf = appendU32(buf, t.CodeOffset)
		buf = appendU32(buf, t.CodeLength)
	}

	buf = appendU32(buf, uint32(len(p.Code)))
	buf = append(buf, p.Code...)
	return buf
}

func int32ToU32(v int32) uint32 { return uint32(v) }

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32BE(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendConstant(buf []byte, v interface{}) []byte {
	switch v := v.(type) {
	case nil:
		return append(buf, 0)
	case bool:
		if v {
			return append(buf, 1)
		}
		return append(buf, 2)
	case int32:
		buf = append(buf, 3)
		return appendU32(buf, uint32(v))
	case float64:
		buf = append(buf, 4)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		return append(buf, tmp[:]...)
	case string:
		buf = append(buf, 5)
		return appendString(buf, v)
	case ir.Regex:
		buf = append(buf, 6)
		buf = appendString(buf, v.Pattern)
		return appendString(buf, v.Flags)
	default:
		panic(fmt.Sprintf("compiler: unencodable constant type %T", v))
	}
}

// Decode parses the binary format of spec §6.3, validating every
// documented invariant (magic, version, UTF-8, entry point, code ranges).
func Decode(data []byte) (*Program, error) {
	d := &decoder{data: data}
	magic := d.u32BE()
	if d.err != nil {
		return nil, d.err
	}
	if magic != Magic {
		return nil, readErrorf("bytecode: bad magic %#08x", magic)
	}
	major := d.byte()
	minor := d.byte()
	_ = minor
	if int(major) != (Version>>8)&0xff && major != 0 {
		return nil, readErrorf("bytecode: unsupported major version %d", major)
	}
	flags := d.byte()
	d.byte() // reserved
	entry := d.u32() // entry point: Encode always writes 0, validated against Templates below
	d.u32()  // reserved
	if d.err != nil {
		return nil, d.err
	}

	p := &Program{}
	nConsts := d.u32()
	for i := uint32(0); i < nConsts && d.err == nil; i++ {
		p.Constants = append(p.Constants, Constant{Value: d.constant()})
	}

	nNames := d.u32()
	for i := uint32(0); i < nNames && d.err == nil; i++ {
		s := d.string()
		if d.err == nil && !utf8.ValidString(s) {
			d.err = readErrorf("bytecode: invalid UTF-8 in name table")
			break
		}
		p.Names = append(p.Names, s)
	}

	nTpl := d.u32()
	for i := uint32(0); i < nTpl && d.err == nil; i++ {
		var t FunctionTemplate
		t.NameIndex = int32(d.u32())
		t.ParamCount = d.u32()
		t.LocalCount = d.u32()
		nUp := d.u32()
		for j := uint32(0); j < nUp && d.err == nil; j++ {
			isLocal := d.byte() != 0
			idx := d.u32()
			t.Upvalues = append(t.Upvalues, UpvalueSpec{IsLocal: isLocal, Index: idx})
		}
		t.CodeOffset = d.u32()
		t.CodeLength = d.u32()
		p.Templates = append(p.Templates, t)
	}

	codeLen := d.u32()
	if d.err != nil {
		return nil, d.err
	}
	p.Code = d.bytes(int(codeLen))
	if d.err != nil {
		return nil, d.err
	}
	if d.pos != len(d.data) {
		return nil, readErrorf("bytecode: %d trailing byte(s)", len(d.data)-d.pos)
	}

	if len(p.Templates) == 0 {
		return nil, readErrorf("bytecode: no function templates")
	}
	if entry != 0 || int(entry) >= len(p.Templates) {
		return nil, readErrorf("bytecode: invalid entry point %d", entry)
	}
	for i, t := range p.Templates {
		end := uint64(t.CodeOffset) + uint64(t.CodeLength)
		if end > uint64(len(p.Code)) {
			return nil, readErrorf("bytecode: template %d code range out of bounds", i)
		}
	}
	if flags&flagDebugInfo != 0 {
		return nil, readErrorf("bytecode: debug info section present but not supported by this reader")
	}
	return p, nil
}

type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.pos+n > len(d.data) {
		d.err = readErrorf("bytecode: truncated data")
		return false
	}
	return true
}

func (d *decoder) byte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) u32BE() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) string() string {
	n := d.u32()
	b := d.bytes(int(n))
	return string(b)
}

func (d *decoder) constant() interface{} {
	tag := d.byte()
	switch tag {
	case 0:
		return nil
	case 1:
		return true
	case 2:
		return false
	case 3:
		return int32(d.u32())
	case 4:
		return math.Float64frombits(d.u64())
	case 5:
		s := d.string()
		if d.err == nil && !utf8.ValidString(s) {
			d.err = readErrorf("bytecode: invalid UTF-8 in string constant")
		}
		return s
	case 6:
		pat := d.string()
		flags := d.string()
		return ir.Regex{Pattern: pat, Flags: flags}
	default:
		if d.err == nil {
			d.err = readErrorf("bytecode: unknown constant tag %d", tag)
		}
		return nil
	}
}
