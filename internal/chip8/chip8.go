// Package chip8 implements a CHIP-8 virtual machine.
//
// The VM owns the complete machine state and advances it exactly one
// instruction per Step call. It never blocks, never sleeps and has no
// wall-clock awareness: the host owns the run loop, feeds key events,
// renders the framebuffer and drives the 60 Hz timer tick.
package chip8

import (
	"errors"
	"fmt"
	"log/slog"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	FontStart       = uint16(0x050)
	InstructionSize = 2

	// MaxROMSize is the program space available above ProgramStart.
	MaxROMSize = MemorySize - int(ProgramStart)

	addressMask = uint16(0x0FFF)
)

var (
	// ErrROMTooLarge is returned by Load when the image does not fit into
	// the program space above 0x200.
	ErrROMTooLarge = errors.New("rom image too large")

	// ErrInvalidKey is returned by KeyDown/KeyUp for key indices outside
	// the hex keypad range 0x0-0xF.
	ErrInvalidKey = errors.New("invalid key index")
)

// Quirks selects between documented points of divergence among historical
// CHIP-8 interpreters. ROM compatibility depends on these, so they are
// per-instance construction parameters rather than build-time choices.
// The zero value gives the modern conventions.
type Quirks struct {
	// ShiftSourceY makes 8XY6/8XYE shift the value of VY into VX, the
	// original COSMAC VIP behavior. When false, VX is shifted in place.
	ShiftSourceY bool

	// IncrementIndex makes FX55/FX65 advance I by X+1 after the register
	// dump or load, the original COSMAC VIP behavior. When false, I is
	// left unchanged.
	IncrementIndex bool

	// ClipSprites makes DXYN clip sprite output at the screen edges.
	// When false, sprites wrap around both axes.
	ClipSprites bool
}

// VM holds the complete machine state. Fields are fixed-size arrays so
// Snapshot/Restore reduce to structural assignments.
type VM struct {
	quirks Quirks

	memory [MemorySize]uint8    // Memory (4k), program at 0x200, font at 0x050
	v      [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Return address stack
	sp    uint8             // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register, 12 bits significant

	delayTimer uint8
	soundTimer uint8

	keypad   [KeyCount]uint8                   // Keypad, one flag per hex key
	gfx      [ScreenWidth * ScreenHeight]uint8 // Framebuffer, row-major, one byte per pixel
	drawFlag bool                              // Set whenever the framebuffer changes
}

// New creates a machine with the font table loaded and PC at 0x200.
func New(quirks Quirks) *VM {
	vm := &VM{quirks: quirks}
	vm.Reset(true)
	return vm
}

// Reset reinitializes registers, stack, timers, keypad, framebuffer and PC.
// A hard reset additionally clears all memory and rewrites the font table;
// a soft reset leaves memory untouched.
func (vm *VM) Reset(hard bool) {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0
	vm.stack = [StackSize]uint16{}
	vm.v = [RegisterCount]uint8{}
	vm.keypad = [KeyCount]uint8{}
	vm.delayTimer = 0
	vm.soundTimer = 0

	vm.gfx = [ScreenWidth * ScreenHeight]uint8{}
	vm.drawFlag = true

	if hard {
		vm.memory = [MemorySize]uint8{}
		copy(vm.memory[FontStart:], fontSprites[:])
		slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStart), "n", len(fontSprites))
	}
}

// Load copies a ROM image into memory at 0x200 and performs a soft reset.
// Memory below 0x200 (the font table) is left untouched. On failure the
// machine state is unchanged.
func (vm *VM) Load(rom []byte) error {
	if len(rom) > MaxROMSize {
		return fmt.Errorf("%w: %d bytes, program space is %d", ErrROMTooLarge, len(rom), MaxROMSize)
	}

	vm.Reset(false)
	clear(vm.memory[ProgramStart:])
	copy(vm.memory[ProgramStart:], rom)

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(rom))
	return nil
}

// Step executes exactly one instruction. Unknown opcodes are a no-op and
// no in-ROM condition can fail; the call always returns immediately. The
// only instruction that halts net forward progress is FX0A, which rewinds
// PC until a key is pressed.
func (vm *VM) Step() {
	vm.executeOpcode(vm.fetchOpcode())
}

// fetchOpcode reads the big-endian instruction word at PC and advances PC
// past it before dispatch, so jump and call targets overwrite the advanced
// value. PC stays masked to the 4k address space.
func (vm *VM) fetchOpcode() uint16 {
	vm.pc &= addressMask
	hi := vm.memory[vm.pc]
	lo := vm.memory[(vm.pc+1)&addressMask]
	vm.pc = (vm.pc + InstructionSize) & addressMask

	return uint16(hi)<<8 | uint16(lo)
}

// Key identifies one of the 16 hex keypad keys.
type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// KeyDown marks a keypad key as pressed.
func (vm *VM) KeyDown(key Key) error {
	if key >= KeyCount {
		return fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}
	vm.keypad[key] = 1
	return nil
}

// KeyUp marks a keypad key as released.
func (vm *VM) KeyUp(key Key) error {
	if key >= KeyCount {
		return fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}
	vm.keypad[key] = 0
	return nil
}

// TickTimers decrements the delay and sound timers by one if nonzero.
// The host calls this at a steady 60 Hz, independent of how often Step
// runs; instruction dispatch never touches the timers.
func (vm *VM) TickTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}
	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

// Framebuffer returns the 64x32 row-major pixel grid, one byte per pixel.
// The slice aliases VM state and must be treated as read-only.
func (vm *VM) Framebuffer() []uint8 {
	return vm.gfx[:]
}

// DrawDirty reports whether the framebuffer changed since the host last
// cleared the flag. The VM only ever sets it.
func (vm *VM) DrawDirty() bool {
	return vm.drawFlag
}

// ClearDrawDirty is called by the host after rendering.
func (vm *VM) ClearDrawDirty() {
	vm.drawFlag = false
}

// DelayTimer returns the current delay timer value. Programs read it via
// FX07; the accessor exists for host-side inspection and tests.
func (vm *VM) DelayTimer() uint8 {
	return vm.delayTimer
}

// SoundTimer returns the current sound timer value. The host keeps its
// beeper audible while this is nonzero.
func (vm *VM) SoundTimer() uint8 {
	return vm.soundTimer
}
