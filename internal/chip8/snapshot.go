package chip8

// Snapshot is a plain value copy of the complete machine state. Quirk
// configuration is not part of it: quirks belong to the instance, not to
// the machine state a savestate captures.
type Snapshot struct {
	Memory [MemorySize]uint8
	V      [RegisterCount]uint8

	Stack [StackSize]uint16
	SP    uint8

	PC uint16
	I  uint16

	DelayTimer uint8
	SoundTimer uint8

	Keypad [KeyCount]uint8
	Gfx    [ScreenWidth * ScreenHeight]uint8
}

// Snapshot copies the current machine state.
func (vm *VM) Snapshot() Snapshot {
	return Snapshot{
		Memory:     vm.memory,
		V:          vm.v,
		Stack:      vm.stack,
		SP:         vm.sp,
		PC:         vm.pc,
		I:          vm.index,
		DelayTimer: vm.delayTimer,
		SoundTimer: vm.soundTimer,
		Keypad:     vm.keypad,
		Gfx:        vm.gfx,
	}
}

// Restore replaces the machine state with a previously taken snapshot in
// one atomic assignment. The draw-dirty flag is asserted so the host
// redraws even if the restored framebuffer happens to match.
func (vm *VM) Restore(s Snapshot) {
	vm.memory = s.Memory
	vm.v = s.V
	vm.stack = s.Stack
	vm.sp = s.SP
	vm.pc = s.PC
	vm.index = s.I
	vm.delayTimer = s.DelayTimer
	vm.soundTimer = s.SoundTimer
	vm.keypad = s.Keypad
	vm.gfx = s.Gfx

	vm.drawFlag = true
}
