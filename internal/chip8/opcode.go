package chip8

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

func (vm *VM) executeOpcode(opcode uint16) {
	instr := decode(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(opcode),
		)
	}

	instr.Execute(vm, opcode)
}

// Disassemble returns the mnemonic for a single opcode. It is backed by
// the same table Step dispatches through, so listings and the debug trace
// always agree.
func Disassemble(opcode uint16) string {
	return decode(opcode).Name(opcode)
}

type instruction struct {
	Name    func(opcode uint16) string
	Execute func(vm *VM, opcode uint16)
}

// Nibble and field extraction. An opcode is named op1..op4 high to low;
// X is op2, Y is op3, N is op4, KK the low byte, NNN the low 12 bits.
func opX(opcode uint16) uint16   { return (opcode & 0x0F00) >> 8 }
func opY(opcode uint16) uint16   { return (opcode & 0x00F0) >> 4 }
func opN(opcode uint16) uint16   { return opcode & 0x000F }
func opKK(opcode uint16) uint8   { return uint8(opcode & 0x00FF) }
func opNNN(opcode uint16) uint16 { return opcode & 0x0FFF }

// skip advances PC past the next instruction.
func (vm *VM) skip() {
	vm.pc = (vm.pc + InstructionSize) & addressMask
}

func decode(opcode uint16) instruction {
	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode & 0x00FF {
		case 0x00E0:
			// 00E0 - Clear screen
			return clsInstruction

		case 0x00EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1000:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3000:
		// 3XKK - Skips the next instruction if VX equals KK
		return skeq1Instruction

	case 0x4000:
		// 4XKK - Skips the next instruction if VX does not equal KK
		return skne1Instruction

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		return skeq2Instruction

	case 0x6000:
		// 6XKK - Sets VX to KK
		return mov1Instruction

	case 0x7000:
		// 7XKK - Adds KK to VX, no carry
		return add1Instruction

	case 0x8000:
		// 8XY_
		switch opcode & 0x000F {
		case 0x0000:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction

		case 0x0001:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction

		case 0x0002:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction

		case 0x0003:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction

		case 0x0004:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			return add2Instruction

		case 0x0005:
			// 8XY5 - VY is subtracted from VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			return subInstruction

		case 0x0006:
			// 8XY6 - Shifts right by one, bit 0 into VF. Shift source
			// depends on the ShiftSourceY quirk.
			return shrInstruction

		case 0x0007:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			return rsbInstruction

		case 0x000E:
			// 8XYE - Shifts left by one, bit 7 into VF. Shift source
			// depends on the ShiftSourceY quirk.
			return shlInstruction
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		return skne2Instruction

	case 0xA000:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		return jmiInstruction

	case 0xC000:
		// CXKK - Sets VX to a random byte, masked by KK
		return randInstruction

	case 0xD000:
		// DXYN - Draws an N-row sprite stored at I at (VX, VY),
		// XOR-compositing each bit. VF reports collisions.
		return spriteInstruction

	case 0xE000:
		switch opcode & 0x00FF {
		case 0x009E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			return skprInstruction

		case 0x00A1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			return skupInstruction
		}

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007:
			// FX07 - Sets VX to the value of the delay timer
			return gdelayInstruction

		case 0x000A:
			// FX0A - A key press is awaited, and then stored in VX
			return keyInstruction

		case 0x0015:
			// FX15 - Sets the delay timer to VX
			return sdelayInstruction

		case 0x0018:
			// FX18 - Sets the sound timer to VX
			return ssoundInstruction

		case 0x001E:
			// FX1E - Adds VX to I, masked to 12 bits
			return adiInstruction

		case 0x0029:
			// FX29 - Sets I to the font glyph for the hex digit in VX
			return fontInstruction

		case 0x0033:
			// FX33 - Stores the BCD decomposition of VX at I, I+1, I+2
			return bcdInstruction

		case 0x0055:
			// FX55 - Stores V0 to VX in memory starting at address I
			return strInstruction

		case 0x0065:
			// FX65 - Reads memory starting at address I into V0..VX
			return ldrInstruction
		}
	}

	// Everything else, including 0NNN SYS calls, is a no-op.
	return noopInstruction
}

var (
	// 00e0	cls	clear the screen
	clsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "cls"
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.gfx = [ScreenWidth * ScreenHeight]uint8{}
			vm.drawFlag = true
		},
	}

	// 00ee	rts	return from subroutine call
	rtsInstruction = instruction{
		Name: func(opcode uint16) string {
			return "rts"
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.sp == 0 {
				// Underflow: the RET has no effect.
				slog.Debug("rts with empty stack", "pc", fmt.Sprintf("0x%04x", vm.pc))
				return
			}

			vm.sp--
			vm.pc = vm.stack[vm.sp] & addressMask
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jmp 0x%04x", opNNN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.pc = opNNN(opcode)
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jsr 0x%04x", opNNN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.sp == StackSize {
				// Overflow: the CALL is ignored, nothing is pushed and
				// execution continues past it.
				slog.Debug("jsr with full stack", "pc", fmt.Sprintf("0x%04x", vm.pc))
				return
			}

			vm.stack[vm.sp] = vm.pc
			vm.sp++
			vm.pc = opNNN(opcode)
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skeq v%x, %d", opX(opcode), opKK(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.v[opX(opcode)] == opKK(opcode) {
				vm.skip()
			}
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skne v%x, %d", opX(opcode), opKK(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.v[opX(opcode)] != opKK(opcode) {
				vm.skip()
			}
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skeq v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.v[opX(opcode)] == vm.v[opY(opcode)] {
				vm.skip()
			}
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("mov v%x, %d", opX(opcode), opKK(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] = opKK(opcode)
		},
	}

	// 7rxx	add vr,xx	add constant to register r, no carry generated
	add1Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("add v%x, %d", opX(opcode), opKK(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] += opKK(opcode)
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("mov v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] = vm.v[opY(opcode)]
		},
	}

	// 8ry1	or vr,vy	or register vy into register vr
	orInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("or v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] |= vm.v[opY(opcode)]
		},
	}

	// 8ry2	and vr,vy	and register vy into register vr
	andInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("and v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] &= vm.v[opY(opcode)]
		},
	}

	// 8ry3	xor vr,vy	exclusive or register vy into register vr
	xorInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("xor v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] ^= vm.v[opY(opcode)]
		},
	}

	// 8ry4	add vr,vy	add register vy to vr, carry in vf
	add2Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("add v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			sum := uint16(vm.v[opX(opcode)]) + uint16(vm.v[opY(opcode)])

			vm.v[opX(opcode)] = uint8(sum)

			// The flag write comes last so it wins when X is F.
			if sum > 0xFF {
				vm.v[0x0F] = 1
			} else {
				vm.v[0x0F] = 0
			}
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr, vf cleared on borrow
	subInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("sub v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			x := vm.v[opX(opcode)]
			y := vm.v[opY(opcode)]

			vm.v[opX(opcode)] = x - y

			if y > x {
				vm.v[0x0F] = 0
			} else {
				vm.v[0x0F] = 1
			}
		},
	}

	// 8ry6	shr vr	shift right by one, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("shr v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			src := vm.v[opX(opcode)]
			if vm.quirks.ShiftSourceY {
				src = vm.v[opY(opcode)]
			}

			vm.v[opX(opcode)] = src >> 1
			vm.v[0x0F] = src & 0x1
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr
	rsbInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("rsb v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			x := vm.v[opX(opcode)]
			y := vm.v[opY(opcode)]

			vm.v[opX(opcode)] = y - x

			if x > y {
				vm.v[0x0F] = 0
			} else {
				vm.v[0x0F] = 1
			}
		},
	}

	// 8rye	shl vr	shift left by one, bit 7 goes into register vf
	shlInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("shl v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			src := vm.v[opX(opcode)]
			if vm.quirks.ShiftSourceY {
				src = vm.v[opY(opcode)]
			}

			vm.v[opX(opcode)] = src << 1
			vm.v[0x0F] = src >> 7
		},
	}

	// 9ry0	skne vr,vy	skip if register r <> register y
	skne2Instruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skne v%x, v%x", opX(opcode), opY(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.v[opX(opcode)] != vm.v[opY(opcode)] {
				vm.skip()
			}
		},
	}

	// axxx	mvi xxx	load index register with constant xxx
	mviInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("mvi 0x%04x", opNNN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.index = opNNN(opcode)
		},
	}

	// bxxx	jmi xxx	jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("jmi 0x%04x", opNNN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.pc = (opNNN(opcode) + uint16(vm.v[0])) & addressMask
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("rand v%x, %d", opX(opcode), opKK(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] = uint8(rand.IntN(256)) & opKK(opcode)
		},
	}

	// drys	sprite vr,vy,s	draw sprite at (vr,vy), height s
	// Sprites are stored at the index register, 8 bits wide. The start
	// coordinate wraps; overhang wraps too unless the ClipSprites quirk
	// is set. vf is set to 1 if any set pixel is cleared by the xor.
	spriteInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", opX(opcode), opY(opcode), opN(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			xLocation := uint16(vm.v[opX(opcode)]) % ScreenWidth
			yLocation := uint16(vm.v[opY(opcode)]) % ScreenHeight
			height := opN(opcode)

			collision := uint8(0)
			for row := uint16(0); row < height; row++ {
				sprite := vm.memory[(vm.index+row)&addressMask]

				screenY := yLocation + row
				if vm.quirks.ClipSprites && screenY >= ScreenHeight {
					break
				}
				screenY %= ScreenHeight

				for col := uint16(0); col < 8; col++ {
					if sprite&(0x80>>col) == 0 {
						continue
					}

					screenX := xLocation + col
					if vm.quirks.ClipSprites && screenX >= ScreenWidth {
						continue
					}
					screenX %= ScreenWidth

					addr := screenY*ScreenWidth + screenX
					if vm.gfx[addr] != 0 {
						collision = 1
					}
					vm.gfx[addr] ^= 1
				}
			}

			vm.v[0x0F] = collision
			vm.drawFlag = true
		},
	}

	// er9e	skpr r	skip if key in register r is pressed
	skprInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skpr v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.keypad[vm.v[opX(opcode)]&0x0F] != 0 {
				vm.skip()
			}
		},
	}

	// era1	skup r	skip if key in register r is not pressed
	skupInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("skup v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			if vm.keypad[vm.v[opX(opcode)]&0x0F] == 0 {
				vm.skip()
			}
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("gdelay v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.v[opX(opcode)] = vm.delayTimer
		},
	}

	// fr0a	key vr	wait for keypress, put key in register vr
	// PC is rewound so the instruction refetches next Step; each call
	// still returns immediately, only net progress stalls.
	keyInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("key v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			for i := range vm.keypad {
				if vm.keypad[i] != 0 {
					vm.v[opX(opcode)] = uint8(i)
					return
				}
			}

			vm.pc = (vm.pc - InstructionSize) & addressMask
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("sdelay v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.delayTimer = vm.v[opX(opcode)]
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ssound v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.soundTimer = vm.v[opX(opcode)]
		},
	}

	// fr1e	adi vr	add register vr to the index register
	adiInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("adi v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			vm.index = (vm.index + uint16(vm.v[opX(opcode)])) & addressMask
		},
	}

	// fr29	font vr	point I to the font sprite for hex digit in vr
	fontInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("font v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			digit := uint16(vm.v[opX(opcode)] & 0x0F)
			vm.index = FontStart + digit*5
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at I,I+1,I+2
	bcdInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("bcd v%x", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			x := vm.v[opX(opcode)]

			vm.memory[vm.index&addressMask] = x / 100
			vm.memory[(vm.index+1)&addressMask] = (x / 10) % 10
			vm.memory[(vm.index+2)&addressMask] = x % 10
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards
	strInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("str %d", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			n := opX(opcode)
			for i := uint16(0); i <= n; i++ {
				vm.memory[(vm.index+i)&addressMask] = vm.v[i]
			}

			// On the original interpreter, I = I + X + 1 afterwards.
			if vm.quirks.IncrementIndex {
				vm.index = (vm.index + n + 1) & addressMask
			}
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards
	ldrInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ldr %d", opX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) {
			n := opX(opcode)
			for i := uint16(0); i <= n; i++ {
				vm.v[i] = vm.memory[(vm.index+i)&addressMask]
			}

			if vm.quirks.IncrementIndex {
				vm.index = (vm.index + n + 1) & addressMask
			}
		},
	}

	// Unrecognized opcodes are silently skipped. Malformed and
	// CHIP-8-superset ROMs are common in the wild, so execution just
	// continues at the already-advanced PC.
	noopInstruction = instruction{
		Name: func(opcode uint16) string {
			return fmt.Sprintf("noop 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) {
			slog.Debug("unknown opcode", "opcode", fmt.Sprintf("0x%04X", opcode))
		},
	}
)
