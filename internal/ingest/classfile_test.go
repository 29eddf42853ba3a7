package ingest

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// classWriter assembles a minimal valid class file for parser tests.
type classWriter struct {
	pool    bytes.Buffer
	count   uint16 // constant_pool_count, entries + 1
	methods bytes.Buffer
	nMeth   uint16
}

func newClassWriter() *classWriter {
	return &classWriter{count: 1}
}

func (w *classWriter) be(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func (w *classWriter) utf8(s string) uint16 {
	idx := w.count
	w.count++
	w.pool.WriteByte(1)
	w.be(&w.pool, uint16(len(s)))
	w.pool.WriteString(s)
	return idx
}

func (w *classWriter) class(nameIdx uint16) uint16 {
	idx := w.count
	w.count++
	w.pool.WriteByte(7)
	w.be(&w.pool, nameIdx)
	return idx
}

func (w *classWriter) long(v uint64) {
	w.count += 2 // longs occupy two pool slots
	w.pool.WriteByte(5)
	w.be(&w.pool, v)
}

// method appends one method_info. codeLen < 0 means no Code attribute.
func (w *classWriter) method(nameIdx, descIdx, codeAttrIdx uint16, codeLen int) {
	w.nMeth++
	w.be(&w.methods, uint16(0x0001)) // access_flags
	w.be(&w.methods, nameIdx)
	w.be(&w.methods, descIdx)
	if codeLen < 0 {
		w.be(&w.methods, uint16(0)) // attributes_count
		return
	}
	w.be(&w.methods, uint16(1))
	w.be(&w.methods, codeAttrIdx)
	w.be(&w.methods, uint32(12+codeLen))
	w.be(&w.methods, uint16(1)) // max_stack
	w.be(&w.methods, uint16(1)) // max_locals
	w.be(&w.methods, uint32(codeLen))
	w.methods.Write(make([]byte, codeLen))
	w.be(&w.methods, uint16(0)) // exception_table_length
	w.be(&w.methods, uint16(0)) // attributes_count
}

func (w *classWriter) build(thisClass uint16) []byte {
	var out bytes.Buffer
	w.be(&out, uint32(classMagic))
	w.be(&out, uint16(0))  // minor
	w.be(&out, uint16(52)) // major
	w.be(&out, w.count)
	out.Write(w.pool.Bytes())
	w.be(&out, uint16(0x0021)) // access_flags
	w.be(&out, thisClass)
	w.be(&out, uint16(0)) // super_class
	w.be(&out, uint16(0)) // interfaces_count
	w.be(&out, uint16(0)) // fields_count
	w.be(&out, w.nMeth)
	out.Write(w.methods.Bytes())
	w.be(&out, uint16(0)) // class attributes_count
	return out.Bytes()
}

func sampleClass() []byte {
	w := newClassWriter()
	name := w.utf8("com/example/Foo")
	this := w.class(name)
	doWork := w.utf8("doWork")
	voidDesc := w.utf8("()V")
	code := w.utf8("Code")
	abstractM := w.utf8("template")
	w.long(1 << 40)
	w.method(doWork, voidDesc, code, 42)
	w.method(abstractM, voidDesc, 0, -1)
	return w.build(this)
}

func TestParseClassMembers(t *testing.T) {
	facts, err := ClassFileParser{}.ParseClassMembers(sampleClass())
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, "com.example.Foo.doWork()V", facts[0].QualifiedName)
	assert.Equal(t, int64(42), facts[0].Size)
	assert.Equal(t, "com.example.Foo.template()V", facts[1].QualifiedName)
	assert.Zero(t, facts[1].Size, "methods without a Code attribute have no size")
}

func TestParseClassMembersRejectsWrongMagic(t *testing.T) {
	data := sampleClass()
	data[0] = 0x00
	_, err := ClassFileParser{}.ParseClassMembers(data)
	assert.Error(t, err)
}

func TestParseClassMembersRejectsTruncated(t *testing.T) {
	data := sampleClass()
	for _, cut := range []int{4, 10, len(data) / 2, len(data) - 3} {
		_, err := ClassFileParser{}.ParseClassMembers(data[:cut])
		assert.Error(t, err, "truncated at %d", cut)
	}
}

func TestParseClassMembersEmptyInput(t *testing.T) {
	_, err := ClassFileParser{}.ParseClassMembers(nil)
	assert.Error(t, err)
}
