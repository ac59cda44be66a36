// Package hal is the SDL2 host for the CHIP-8 machine: window, renderer,
// keyboard, beeper and the run loop that schedules the CPU and timer
// clocks. The VM never calls back into this package; the loop in run.go
// reads the framebuffer and feeds key events in.
package hal

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	"github.com/velikanov/chip8vm/internal/chip8"
)

const (
	WindowWidth  = 1024
	WindowHeight = 512
)

type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int
	beeper          *beeper
}

func New() (*HAL, error) {
	if err := sdl.Init(sdl.INIT_EVERYTHING); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	window, err := sdl.CreateWindow("CHIP-8", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, WindowWidth, WindowHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_UTILITY)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window")
	window.Show()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	err = renderer.SetLogicalSize(WindowWidth, WindowHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, chip8.ScreenWidth, chip8.ScreenHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")

	return &HAL{
		window:          window,
		renderer:        renderer,
		texture:         texture,
		backBuffer:      make([]uint32, chip8.ScreenWidth*chip8.ScreenHeight),
		backBufferPitch: int(chip8.ScreenWidth) * int(unsafe.Sizeof(uint32(0))),
		beeper:          newBeeper(),
	}, nil
}

func (hal *HAL) Shutdown() {
	hal.beeper.shutdown()

	if err := hal.texture.Destroy(); err != nil {
		slog.Error("failed to destroy sdl texture", "err", err)
	}

	if err := hal.renderer.Destroy(); err != nil {
		slog.Error("failed to destroy sdl renderer", "err", err)
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
}

// command is a host-level action requested via input events.
type command int

const (
	cmdNone = command(iota)
	cmdQuit
	cmdReboot
	cmdTogglePause
	cmdSaveState
	cmdLoadState
)

// readInput drains the SDL event queue, forwarding keypad keys to the
// machine and translating host gestures into commands. When several
// commands arrive in one frame the last one wins.
func (hal *HAL) readInput(machine *chip8.VM) command {
	cmd := cmdNone

	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e.GetType() {
		case sdl.QUIT:
			slog.Debug("hal: exit requested")
			return cmdQuit

		case sdl.KEYDOWN:
			ke := e.(*sdl.KeyboardEvent)
			switch ke.Keysym.Scancode {
			case sdl.SCANCODE_BACKSPACE:
				cmd = cmdReboot
			case sdl.SCANCODE_P:
				cmd = cmdTogglePause
			case sdl.SCANCODE_F5:
				cmd = cmdSaveState
			case sdl.SCANCODE_F9:
				cmd = cmdLoadState
			default:
				if key, ok := keyMap(ke); ok {
					_ = machine.KeyDown(key)
				}
			}

		case sdl.KEYUP:
			if key, ok := keyMap(e.(*sdl.KeyboardEvent)); ok {
				_ = machine.KeyUp(key)
			}
		}
	}

	return cmd
}

func keyMap(e *sdl.KeyboardEvent) (chip8.Key, bool) {
	// Physical                Logical
	// ================        =================
	// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
	// | q | w | e | r |       | 4 | 5 | 6 | D |
	// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
	// | z | x | c | v |       | A | 0 | B | F |
	// ================        =================

	switch e.Keysym.Scancode {
	case sdl.SCANCODE_X:
		return chip8.Key0, true
	case sdl.SCANCODE_1:
		return chip8.Key1, true
	case sdl.SCANCODE_2:
		return chip8.Key2, true
	case sdl.SCANCODE_3:
		return chip8.Key3, true
	case sdl.SCANCODE_Q:
		return chip8.Key4, true
	case sdl.SCANCODE_W:
		return chip8.Key5, true
	case sdl.SCANCODE_E:
		return chip8.Key6, true
	case sdl.SCANCODE_A:
		return chip8.Key7, true
	case sdl.SCANCODE_S:
		return chip8.Key8, true
	case sdl.SCANCODE_D:
		return chip8.Key9, true
	case sdl.SCANCODE_Z:
		return chip8.KeyA, true
	case sdl.SCANCODE_C:
		return chip8.KeyB, true
	case sdl.SCANCODE_4:
		return chip8.KeyC, true
	case sdl.SCANCODE_R:
		return chip8.KeyD, true
	case sdl.SCANCODE_F:
		return chip8.KeyE, true
	case sdl.SCANCODE_V:
		return chip8.KeyF, true
	default:
		return 0, false
	}
}

func (hal *HAL) Draw(gfx []uint8) error {
	const (
		bgColor = uint32(0x000000)
		fgColor = uint32(0x33ff66)
	)

	for i := range hal.backBuffer {
		color := bgColor
		if gfx[i] != 0 {
			color = fgColor
		}
		hal.backBuffer[i] = color
	}

	backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
	if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
		return fmt.Errorf("failed to update sdl texture: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
		return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
	}

	hal.renderer.Present()
	return nil
}
