package chip8

import (
	"errors"
	"fmt"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// loadWords assembles opcodes into a ROM image and loads it.
func loadWords(t *testing.T, vm *VM, opcodes ...uint16) {
	t.Helper()

	rom := make([]byte, 0, len(opcodes)*2)
	for _, op := range opcodes {
		rom = append(rom, uint8(op>>8), uint8(op))
	}
	assert.NoError(t, vm.Load(rom))
}

func TestNew(t *testing.T) {
	vm := New(Quirks{})

	assert.Equal(t, ProgramStart, vm.pc)
	assert.Equal(t, uint8(0), vm.sp)
	assert.Equal(t, fontSprites[:], vm.memory[FontStart:int(FontStart)+len(fontSprites)])
	assert.True(t, vm.DrawDirty())
}

func TestLoadBounds(t *testing.T) {
	tests := []struct {
		name    string
		romSize int
		wantErr bool
	}{
		{"max size", MaxROMSize, false},
		{"one byte over", MaxROMSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := New(Quirks{})
			err := vm.Load(make([]byte, tt.romSize))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrROMTooLarge))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFailureLeavesStateUnchanged(t *testing.T) {
	vm := New(Quirks{})
	loadWords(t, vm, 0x6142) // mov v1, 0x42
	vm.Step()

	err := vm.Load(make([]byte, MaxROMSize+1))
	assert.True(t, errors.Is(err, ErrROMTooLarge))

	assert.Equal(t, uint8(0x61), vm.memory[ProgramStart])
	assert.Equal(t, uint8(0x42), vm.v[1])
	assert.Equal(t, ProgramStart+2, vm.pc)
}

func TestLoadClearsStaleProgramBytes(t *testing.T) {
	vm := New(Quirks{})
	loadWords(t, vm, 0x6142, 0x6242)
	loadWords(t, vm, 0x6005)

	assert.Equal(t, uint8(0), vm.memory[ProgramStart+2])
	assert.Equal(t, uint8(0), vm.memory[ProgramStart+3])
}

func TestReset(t *testing.T) {
	vm := New(Quirks{})
	loadWords(t, vm, 0x6105)
	vm.Step()
	vm.memory[FontStart] = 0x00 // corrupt a font byte

	vm.Reset(false)
	assert.Equal(t, ProgramStart, vm.pc)
	assert.Equal(t, uint8(0), vm.v[1])
	assert.Equal(t, uint8(0x61), vm.memory[ProgramStart], "soft reset keeps program memory")
	assert.Equal(t, uint8(0x00), vm.memory[FontStart], "soft reset keeps corrupted font")

	vm.Reset(true)
	assert.Equal(t, fontSprites[0], vm.memory[FontStart], "hard reset rewrites the font")
	assert.Equal(t, uint8(0), vm.memory[ProgramStart], "hard reset clears program memory")
}

// step executes a single opcode placed at the current PC.
func step(vm *VM, opcode uint16) {
	vm.memory[vm.pc] = uint8(opcode >> 8)
	vm.memory[vm.pc+1] = uint8(opcode)
	vm.Step()
}

func TestOpcodeTable(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(vm *VM)
		opcode uint16
		check  func(t *testing.T, vm *VM)
	}{
		{
			name: "00E0 cls",
			setup: func(vm *VM) {
				vm.gfx[5] = 1
				vm.ClearDrawDirty()
			},
			opcode: 0x00E0,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint8(0), vm.gfx[5])
				assert.True(t, vm.DrawDirty())
			},
		},
		{
			name: "00EE rts",
			setup: func(vm *VM) {
				vm.stack[0] = 0x0300
				vm.sp = 1
			},
			opcode: 0x00EE,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint16(0x0300), vm.pc)
				assert.Equal(t, uint8(0), vm.sp)
			},
		},
		{
			name:   "00EE rts with empty stack is a noop",
			opcode: 0x00EE,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, ProgramStart+2, vm.pc)
				assert.Equal(t, uint8(0), vm.sp)
			},
		},
		{
			name:   "1NNN jmp",
			opcode: 0x1ABC,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint16(0x0ABC), vm.pc)
			},
		},
		{
			name:   "2NNN jsr",
			opcode: 0x2ABC,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint16(0x0ABC), vm.pc)
				assert.Equal(t, uint8(1), vm.sp)
				assert.Equal(t, ProgramStart+2, vm.stack[0], "return address points past the call")
			},
		},
		{
			name:   "3XKK skeq taken",
			setup:  func(vm *VM) { vm.v[4] = 0x42 },
			opcode: 0x3442,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name:   "3XKK skeq not taken",
			setup:  func(vm *VM) { vm.v[4] = 0x41 },
			opcode: 0x3442,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+2, vm.pc) },
		},
		{
			name:   "4XKK skne taken",
			setup:  func(vm *VM) { vm.v[4] = 0x41 },
			opcode: 0x4442,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name: "5XY0 skeq registers taken",
			setup: func(vm *VM) {
				vm.v[1] = 7
				vm.v[2] = 7
			},
			opcode: 0x5120,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name: "9XY0 skne registers taken",
			setup: func(vm *VM) {
				vm.v[1] = 7
				vm.v[2] = 8
			},
			opcode: 0x9120,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name:   "6XKK mov",
			opcode: 0x6A42,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(0x42), vm.v[0xA]) },
		},
		{
			name:   "7XKK add wraps without carry",
			setup:  func(vm *VM) { vm.v[3] = 0xFF },
			opcode: 0x7302,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint8(0x01), vm.v[3])
				assert.Equal(t, uint8(0), vm.v[0xF], "7XKK never touches VF")
			},
		},
		{
			name:   "8XY0 mov register",
			setup:  func(vm *VM) { vm.v[2] = 0x99 },
			opcode: 0x8120,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(0x99), vm.v[1]) },
		},
		{
			name: "8XY1 or",
			setup: func(vm *VM) {
				vm.v[1] = 0b1010
				vm.v[2] = 0b0101
			},
			opcode: 0x8121,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(0b1111), vm.v[1]) },
		},
		{
			name: "8XY2 and",
			setup: func(vm *VM) {
				vm.v[1] = 0b1110
				vm.v[2] = 0b0111
			},
			opcode: 0x8122,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(0b0110), vm.v[1]) },
		},
		{
			name: "8XY3 xor",
			setup: func(vm *VM) {
				vm.v[1] = 0b1110
				vm.v[2] = 0b0111
			},
			opcode: 0x8123,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(0b1001), vm.v[1]) },
		},
		{
			name: "8XY7 rsb without borrow",
			setup: func(vm *VM) {
				vm.v[1] = 2
				vm.v[2] = 10
			},
			opcode: 0x8127,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint8(8), vm.v[1])
				assert.Equal(t, uint8(1), vm.v[0xF])
			},
		},
		{
			name: "8XY7 rsb with borrow",
			setup: func(vm *VM) {
				vm.v[1] = 10
				vm.v[2] = 2
			},
			opcode: 0x8127,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint8(0xF8), vm.v[1])
				assert.Equal(t, uint8(0), vm.v[0xF])
			},
		},
		{
			name:   "ANNN mvi",
			opcode: 0xA123,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint16(0x0123), vm.index) },
		},
		{
			name:   "BNNN jmi",
			setup:  func(vm *VM) { vm.v[0] = 5 },
			opcode: 0xB300,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint16(0x0305), vm.pc) },
		},
		{
			name: "EX9E skpr pressed",
			setup: func(vm *VM) {
				vm.v[1] = 0xA
				vm.keypad[0xA] = 1
			},
			opcode: 0xE19E,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name:   "EX9E skpr not pressed",
			setup:  func(vm *VM) { vm.v[1] = 0xA },
			opcode: 0xE19E,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+2, vm.pc) },
		},
		{
			name:   "EXA1 skup not pressed",
			setup:  func(vm *VM) { vm.v[1] = 0xA },
			opcode: 0xE1A1,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+4, vm.pc) },
		},
		{
			name:   "FX07 gdelay",
			setup:  func(vm *VM) { vm.delayTimer = 42 },
			opcode: 0xF307,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(42), vm.v[3]) },
		},
		{
			name:   "FX15 sdelay",
			setup:  func(vm *VM) { vm.v[3] = 42 },
			opcode: 0xF315,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(42), vm.delayTimer) },
		},
		{
			name:   "FX18 ssound",
			setup:  func(vm *VM) { vm.v[3] = 42 },
			opcode: 0xF318,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint8(42), vm.SoundTimer()) },
		},
		{
			name: "FX1E adi masks to 12 bits",
			setup: func(vm *VM) {
				vm.index = 0x0FFE
				vm.v[3] = 4
			},
			opcode: 0xF31E,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, uint16(0x0002), vm.index) },
		},
		{
			name:   "FX29 font",
			setup:  func(vm *VM) { vm.v[3] = 0x0B },
			opcode: 0xF329,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, FontStart+0x0B*5, vm.index) },
		},
		{
			name: "FX33 bcd",
			setup: func(vm *VM) {
				vm.v[3] = 234
				vm.index = 0x0300
			},
			opcode: 0xF333,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, uint8(2), vm.memory[0x0300])
				assert.Equal(t, uint8(3), vm.memory[0x0301])
				assert.Equal(t, uint8(4), vm.memory[0x0302])
			},
		},
		{
			name:   "unknown opcode is a noop",
			opcode: 0x0123,
			check: func(t *testing.T, vm *VM) {
				assert.Equal(t, ProgramStart+2, vm.pc)
				assert.Equal(t, uint8(0), vm.sp)
			},
		},
		{
			name:   "SYS call 0NNN is a noop",
			opcode: 0x0ABC,
			check:  func(t *testing.T, vm *VM) { assert.Equal(t, ProgramStart+2, vm.pc) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := New(Quirks{})
			if tt.setup != nil {
				tt.setup(vm)
			}
			step(vm, tt.opcode)
			tt.check(t, vm)
		})
	}
}

func TestAddCarry(t *testing.T) {
	tests := []struct {
		name            string
		x, y            uint8
		wantSum, wantVF uint8
	}{
		{"carry", 0xFF, 0x01, 0x00, 1},
		{"no carry", 0x01, 0x01, 0x02, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := New(Quirks{})
			vm.v[1] = tt.x
			vm.v[2] = tt.y
			step(vm, 0x8124)

			assert.Equal(t, tt.wantSum, vm.v[1])
			assert.Equal(t, tt.wantVF, vm.v[0xF])
		})
	}
}

func TestSubBorrow(t *testing.T) {
	tests := []struct {
		name             string
		x, y             uint8
		wantDiff, wantVF uint8
	}{
		{"no borrow", 0x05, 0x03, 0x02, 1},
		{"equal has no borrow", 0x05, 0x05, 0x00, 1},
		{"borrow wraps", 0x03, 0x05, 0xFE, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := New(Quirks{})
			vm.v[1] = tt.x
			vm.v[2] = tt.y
			step(vm, 0x8125)

			assert.Equal(t, tt.wantDiff, vm.v[1])
			assert.Equal(t, tt.wantVF, vm.v[0xF])
		})
	}
}

func TestShiftQuirk(t *testing.T) {
	t.Run("shr shifts vy with quirk enabled", func(t *testing.T) {
		vm := New(Quirks{ShiftSourceY: true})
		vm.v[1] = 0xAA
		vm.v[2] = 0b00000011
		step(vm, 0x8126)

		assert.Equal(t, uint8(1), vm.v[1])
		assert.Equal(t, uint8(1), vm.v[0xF])
		assert.Equal(t, uint8(0b00000011), vm.v[2], "vy is not modified")
	})

	t.Run("shr shifts vx in place by default", func(t *testing.T) {
		vm := New(Quirks{})
		vm.v[1] = 0b00000010
		vm.v[2] = 0b00000011
		step(vm, 0x8126)

		assert.Equal(t, uint8(1), vm.v[1])
		assert.Equal(t, uint8(0), vm.v[0xF])
	})

	t.Run("shl shifts vy with quirk enabled", func(t *testing.T) {
		vm := New(Quirks{ShiftSourceY: true})
		vm.v[1] = 0x00
		vm.v[2] = 0b10000001
		step(vm, 0x812E)

		assert.Equal(t, uint8(0b00000010), vm.v[1])
		assert.Equal(t, uint8(1), vm.v[0xF])
	})

	t.Run("shl shifts vx in place by default", func(t *testing.T) {
		vm := New(Quirks{})
		vm.v[1] = 0b01000001
		step(vm, 0x812E)

		assert.Equal(t, uint8(0b10000010), vm.v[1])
		assert.Equal(t, uint8(0), vm.v[0xF])
	})
}

func TestLoadStoreQuirk(t *testing.T) {
	t.Run("fx55 leaves index unchanged by default", func(t *testing.T) {
		vm := New(Quirks{})
		vm.v[0] = 0x11
		vm.v[1] = 0x22
		vm.index = 0x0300
		step(vm, 0xF155)

		assert.Equal(t, uint8(0x11), vm.memory[0x0300])
		assert.Equal(t, uint8(0x22), vm.memory[0x0301])
		assert.Equal(t, uint16(0x0300), vm.index)
	})

	t.Run("fx55 advances index with quirk enabled", func(t *testing.T) {
		vm := New(Quirks{IncrementIndex: true})
		vm.index = 0x0300
		step(vm, 0xF155)

		assert.Equal(t, uint16(0x0302), vm.index)
	})

	t.Run("fx65 loads registers", func(t *testing.T) {
		vm := New(Quirks{})
		vm.memory[0x0300] = 0x11
		vm.memory[0x0301] = 0x22
		vm.index = 0x0300
		step(vm, 0xF165)

		assert.Equal(t, uint8(0x11), vm.v[0])
		assert.Equal(t, uint8(0x22), vm.v[1])
		assert.Equal(t, uint16(0x0300), vm.index)
	})

	t.Run("fx65 advances index with quirk enabled", func(t *testing.T) {
		vm := New(Quirks{IncrementIndex: true})
		vm.index = 0x0300
		step(vm, 0xF265)

		assert.Equal(t, uint16(0x0303), vm.index)
	})
}

func TestRandomMask(t *testing.T) {
	vm := New(Quirks{})
	for i := 0; i < 32; i++ {
		vm.pc = ProgramStart
		step(vm, 0xC10F)
		assert.Equal(t, uint8(0), vm.v[1]&0xF0, "random byte must honor the mask")
	}
}

func TestDrawCollision(t *testing.T) {
	vm := New(Quirks{})
	vm.memory[0x0300] = 0xFF
	vm.index = 0x0300

	step(vm, 0xD011)
	assert.Equal(t, uint8(0), vm.v[0xF], "first draw has no collision")
	for col := 0; col < 8; col++ {
		assert.Equal(t, uint8(1), vm.gfx[col])
	}
	assert.True(t, vm.DrawDirty())

	// Drawing the same sprite again erases every pixel and reports the
	// collision.
	step(vm, 0xD011)
	assert.Equal(t, uint8(1), vm.v[0xF])
	for col := 0; col < 8; col++ {
		assert.Equal(t, uint8(0), vm.gfx[col])
	}
}

func TestDrawWraparound(t *testing.T) {
	vm := New(Quirks{})
	vm.memory[0x0300] = 0xC0 // two leftmost sprite columns
	vm.memory[0x0301] = 0xC0
	vm.index = 0x0300
	vm.v[0] = 63
	vm.v[1] = 31

	step(vm, 0xD012)

	for _, pos := range [][2]int{{63, 31}, {0, 31}, {63, 0}, {0, 0}} {
		assert.Equal(t, uint8(1), vm.gfx[pos[1]*ScreenWidth+pos[0]],
			fmt.Sprintf("pixel at %v must wrap", pos))
	}
}

func TestDrawClipQuirk(t *testing.T) {
	vm := New(Quirks{ClipSprites: true})
	vm.memory[0x0300] = 0xFF
	vm.memory[0x0301] = 0xFF
	vm.index = 0x0300
	vm.v[0] = 62
	vm.v[1] = 30

	step(vm, 0xD012)

	set := 0
	for _, px := range vm.gfx {
		if px != 0 {
			set++
		}
	}
	assert.Equal(t, 4, set, "only the on-screen 2x2 corner is drawn")
	assert.Equal(t, uint8(1), vm.gfx[31*ScreenWidth+63])
	assert.Equal(t, uint8(0), vm.gfx[0], "nothing wraps to the opposite corner")
}

func TestWaitForKey(t *testing.T) {
	vm := New(Quirks{})
	loadWords(t, vm, 0xF30A)

	for i := 0; i < 5; i++ {
		vm.Step()
		assert.Equal(t, ProgramStart, vm.pc, "pc must not advance while no key is pressed")
	}

	assert.NoError(t, vm.KeyDown(Key7))
	vm.Step()

	assert.Equal(t, ProgramStart+2, vm.pc)
	assert.Equal(t, uint8(7), vm.v[3])
}

func TestStackBounds(t *testing.T) {
	vm := New(Quirks{})

	// 17 consecutive calls, each targeting the next instruction. The 17th
	// must be ignored without corrupting anything.
	for i := 0; i < 17; i++ {
		addr := int(ProgramStart) + i*2
		target := uint16(addr + 2)
		vm.memory[addr] = 0x20 | uint8(target>>8)
		vm.memory[addr+1] = uint8(target)
	}

	for i := 0; i < 17; i++ {
		vm.Step()
	}

	assert.Equal(t, uint8(StackSize), vm.sp)
	assert.Equal(t, ProgramStart+17*2, vm.pc, "the dropped call still advances past itself")
}

func TestTimerDecoupling(t *testing.T) {
	vm := New(Quirks{})
	// mov v0, 5 / sdelay v0 / ssound v0 / jmp self
	loadWords(t, vm, 0x6005, 0xF015, 0xF018, 0x1206)

	for i := 0; i < 1000; i++ {
		vm.Step()
	}
	assert.Equal(t, uint8(5), vm.DelayTimer(), "step must never decrement timers")
	assert.Equal(t, uint8(5), vm.SoundTimer())

	vm.TickTimers()
	assert.Equal(t, uint8(4), vm.DelayTimer())
	assert.Equal(t, uint8(4), vm.SoundTimer())

	// A zero timer stays at zero.
	for i := 0; i < 10; i++ {
		vm.TickTimers()
	}
	vm.TickTimers()
	assert.Equal(t, uint8(0), vm.DelayTimer())
}

func TestKeyBounds(t *testing.T) {
	vm := New(Quirks{})

	assert.True(t, errors.Is(vm.KeyDown(Key(16)), ErrInvalidKey))
	assert.True(t, errors.Is(vm.KeyUp(Key(255)), ErrInvalidKey))

	assert.NoError(t, vm.KeyDown(KeyF))
	assert.Equal(t, uint8(1), vm.keypad[0xF])
	assert.NoError(t, vm.KeyUp(KeyF))
	assert.Equal(t, uint8(0), vm.keypad[0xF])
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		opcode uint16
		want   string
	}{
		{0x00E0, "cls"},
		{0x00EE, "rts"},
		{0x1234, "jmp 0x0234"},
		{0x2234, "jsr 0x0234"},
		{0x6042, "mov v0, 66"},
		{0x8126, "shr v1"},
		{0xA123, "mvi 0x0123"},
		{0xD125, "sprite v1, v2, 5"},
		{0xF30A, "key v3"},
		{0xFFFF, "noop 0xFFFF"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Disassemble(tt.opcode))
		})
	}
}
