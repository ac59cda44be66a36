package disasm

import (
	"bytes"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestDisassemble(t *testing.T) {
	rom := []byte{
		0x00, 0xE0, // cls
		0x60, 0x42, // mov v0, 66
		0x12, 0x34, // jmp 0x0234
	}

	var buf bytes.Buffer
	assert.NoError(t, Disassemble(&buf, rom))

	want := "$200  00E0  cls\n" +
		"$202  6042  mov v0, 66\n" +
		"$204  1234  jmp 0x0234\n"
	assert.Equal(t, want, buf.String())
}

func TestDisassembleOddTrailingByte(t *testing.T) {
	rom := []byte{0x00, 0xE0, 0xAB}

	var buf bytes.Buffer
	assert.NoError(t, Disassemble(&buf, rom))

	want := "$200  00E0  cls\n" +
		"$202  AB    .byte $AB\n"
	assert.Equal(t, want, buf.String())
}

func TestDisassembleEmptyROM(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Disassemble(&buf, nil))
	assert.Equal(t, "", buf.String())
}
