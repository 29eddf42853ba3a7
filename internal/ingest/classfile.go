package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ClassFileParser reads just enough of the class-file format to list the
// declared methods with their code sizes: the constant pool for names, then
// the method table. Attribute contents other than Code are skipped.
type ClassFileParser struct{}

const classMagic = 0xCAFEBABE

var errTruncatedClass = errors.New("truncated class file")

func (ClassFileParser) ParseClassMembers(data []byte) ([]ClassFact, error) {
	r := &byteReader{data: data}
	if r.u4() != classMagic {
		return nil, fmt.Errorf("not a class file")
	}
	r.skip(4) // minor, major

	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	r.skip(2) // access_flags
	thisClass := r.u2()
	r.skip(2) // super_class
	r.skip(2 * int(r.u2())) // interfaces

	className, err := pool.className(thisClass)
	if err != nil {
		return nil, err
	}
	classDots := strings.ReplaceAll(className, "/", ".")

	// Fields carry no member facts; skip their attribute tables.
	for i, n := 0, int(r.u2()); i < n; i++ {
		r.skip(6)
		skipAttributes(r)
	}

	var facts []ClassFact
	for i, n := 0, int(r.u2()); i < n; i++ {
		r.skip(2) // access_flags
		name, errName := pool.utf8(r.u2())
		desc, errDesc := pool.utf8(r.u2())
		size := readMethodSize(r, pool)
		if r.err != nil {
			return nil, r.err
		}
		if errName != nil || errDesc != nil {
			return nil, fmt.Errorf("method %d has invalid name or descriptor", i)
		}
		facts = append(facts, ClassFact{
			QualifiedName: classDots + "." + name + desc,
			Size:          size,
		})
	}
	if r.err != nil {
		return nil, r.err
	}
	return facts, nil
}

// readMethodSize walks a method's attribute table and returns the Code
// attribute's code_length, or 0 for abstract/native methods.
func readMethodSize(r *byteReader, pool constantPool) int64 {
	var size int64
	for i, n := 0, int(r.u2()); i < n; i++ {
		nameIdx := r.u2()
		length := int(r.u4())
		name, err := pool.utf8(nameIdx)
		if err == nil && name == "Code" && length >= 8 {
			// u2 max_stack, u2 max_locals, u4 code_length
			attr := r.bytes(length)
			if len(attr) >= 8 {
				size = int64(binary.BigEndian.Uint32(attr[4:8]))
			}
			continue
		}
		r.skip(length)
	}
	return size
}

func skipAttributes(r *byteReader) {
	for i, n := 0, int(r.u2()); i < n; i++ {
		r.skip(2)
		r.skip(int(r.u4()))
	}
}

type constantPool struct {
	utf8s   map[uint16]string
	classes map[uint16]uint16 // class index -> utf8 name index
}

func (p constantPool) utf8(idx uint16) (string, error) {
	s, ok := p.utf8s[idx]
	if !ok {
		return "", fmt.Errorf("constant %d is not utf8", idx)
	}
	return s, nil
}

func (p constantPool) className(idx uint16) (string, error) {
	nameIdx, ok := p.classes[idx]
	if !ok {
		return "", fmt.Errorf("constant %d is not a class", idx)
	}
	return p.utf8(nameIdx)
}

func readConstantPool(r *byteReader) (constantPool, error) {
	pool := constantPool{
		utf8s:   make(map[uint16]string),
		classes: make(map[uint16]uint16),
	}
	count := int(r.u2())
	for i := 1; i < count; i++ {
		tag := r.u1()
		if r.err != nil {
			return pool, r.err
		}
		switch tag {
		case 1: // Utf8
			n := int(r.u2())
			pool.utf8s[uint16(i)] = string(r.bytes(n))
		case 7: // Class
			pool.classes[uint16(i)] = r.u2()
		case 8, 16, 19, 20: // String, MethodType, Module, Package
			r.skip(2)
		case 15: // MethodHandle
			r.skip(3)
		case 3, 4: // Integer, Float
			r.skip(4)
		case 9, 10, 11, 12, 17, 18: // refs, NameAndType, Dynamic
			r.skip(4)
		case 5, 6: // Long, Double take two pool slots
			r.skip(8)
			i++
		default:
			return pool, fmt.Errorf("unknown constant pool tag %d", tag)
		}
	}
	return pool, r.err
}

// byteReader is a bounds-checked big-endian cursor. After the first
// out-of-range read it keeps returning zero values and records the error.
type byteReader struct {
	data []byte
	pos  int
	err  error
}

func (r *byteReader) remaining() int { return len(r.data) - r.pos }

func (r *byteReader) fail() {
	if r.err == nil {
		r.err = errTruncatedClass
	}
}

func (r *byteReader) u1() uint8 {
	if r.err != nil || r.remaining() < 1 {
		r.fail()
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *byteReader) u2() uint16 {
	if r.err != nil || r.remaining() < 2 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *byteReader) u4() uint32 {
	if r.err != nil || r.remaining() < 4 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *byteReader) bytes(n int) []byte {
	if n < 0 || r.err != nil || r.remaining() < n {
		r.fail()
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

func (r *byteReader) skip(n int) {
	if n < 0 || r.err != nil || r.remaining() < n {
		r.fail()
		return
	}
	r.pos += n
}
