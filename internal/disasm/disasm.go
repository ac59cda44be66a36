// Package disasm renders a CHIP-8 ROM as a linear instruction listing.
//
// The listing walks the image two bytes at a time without control flow
// analysis, so data words show up as instructions (or as noops). That is
// good enough for eyeballing a ROM next to the emulator's debug trace,
// which uses the same mnemonics.
package disasm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/velikanov/chip8vm/internal/chip8"
)

// Disassemble writes a listing of rom to w, one line per instruction word:
// address, raw word, mnemonic. Addresses are based at 0x200, where the
// machine loads ROM images.
func Disassemble(w io.Writer, rom []byte) error {
	bw := bufio.NewWriter(w)

	addr := chip8.ProgramStart
	for i := 0; i+1 < len(rom); i += chip8.InstructionSize {
		opcode := uint16(rom[i])<<8 | uint16(rom[i+1])
		fmt.Fprintf(bw, "$%03X  %04X  %s\n", addr, opcode, chip8.Disassemble(opcode))
		addr += chip8.InstructionSize
	}

	// A trailing odd byte cannot be an instruction.
	if len(rom)%2 != 0 {
		b := rom[len(rom)-1]
		fmt.Fprintf(bw, "$%03X  %02X    .byte $%02X\n", addr, b, b)
	}

	return bw.Flush()
}
