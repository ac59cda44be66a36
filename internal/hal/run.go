package hal

import (
	"log/slog"
	"time"

	"github.com/velikanov/chip8vm/internal/chip8"
	"github.com/velikanov/chip8vm/internal/state"
)

const (
	// timerHz is the fixed cadence of the delay/sound timer tick and of
	// video frames. The CPU clock is independent of it.
	timerHz = 60

	// DefaultSpeed is the default CPU clock in instructions per second.
	DefaultSpeed = 720
)

// Options configures a Run session.
type Options struct {
	// Speed is the CPU clock in instructions per second. Values below
	// timerHz still execute one instruction per frame.
	Speed int

	// StatePath is the savestate slot written by F5 and read by F9.
	StatePath string
}

// session holds the per-run host state shared by the frame loop.
type session struct {
	machine        *chip8.VM
	rom            []byte
	statePath      string
	cyclesPerFrame int
	paused         bool
}

func newSession(machine *chip8.VM, rom []byte, opts Options) *session {
	if opts.Speed <= 0 {
		opts.Speed = DefaultSpeed
	}
	cyclesPerFrame := opts.Speed / timerHz
	if cyclesPerFrame < 1 {
		cyclesPerFrame = 1
	}

	return &session{
		machine:        machine,
		rom:            rom,
		statePath:      opts.StatePath,
		cyclesPerFrame: cyclesPerFrame,
	}
}

// handleCommand applies a host gesture. It returns false when the loop
// should stop.
func (s *session) handleCommand(cmd command) (bool, error) {
	switch cmd {
	case cmdQuit:
		return false, nil

	case cmdReboot:
		slog.Info("reboot")
		s.paused = false
		if err := s.machine.Load(s.rom); err != nil {
			return false, err
		}

	case cmdTogglePause:
		s.paused = !s.paused
		slog.Info("pause toggled", "paused", s.paused)

	case cmdSaveState:
		if err := state.Save(s.statePath, s.machine.Snapshot()); err != nil {
			slog.Error("failed to save state", "err", err)
		} else {
			slog.Info("state saved", "path", s.statePath)
		}

	case cmdLoadState:
		snap, err := state.Load(s.statePath)
		if err != nil {
			slog.Error("failed to load state", "err", err)
		} else {
			s.machine.Restore(snap)
			slog.Info("state restored", "path", s.statePath)
		}
	}

	return true, nil
}

// stepFrame runs one frame's share of CPU cycles and a single timer tick.
// A paused machine does nothing until the pause is toggled off.
func (s *session) stepFrame() {
	if s.paused {
		return
	}

	for i := 0; i < s.cyclesPerFrame; i++ {
		s.machine.Step()
	}
	s.machine.TickTimers()
}

// Run loads the ROM and drives the machine until the window is closed.
//
// Each 60 Hz frame: drain input, execute the frame's share of CPU cycles,
// tick the timers exactly once, redraw if the framebuffer changed and
// keep the beeper fed while the sound timer runs. Backspace reboots the
// machine with the same ROM, P pauses and resumes.
func Run(hal *HAL, machine *chip8.VM, rom []byte, opts Options) error {
	if err := machine.Load(rom); err != nil {
		return err
	}
	sess := newSession(machine, rom, opts)

	ticker := time.NewTicker(time.Second / timerHz)
	defer ticker.Stop()

	for range ticker.C {
		running, err := sess.handleCommand(hal.readInput(machine))
		if err != nil {
			return err
		}
		if !running {
			return nil
		}

		sess.stepFrame()

		if machine.DrawDirty() {
			if err := hal.Draw(machine.Framebuffer()); err != nil {
				return err
			}
			machine.ClearDrawDirty()
		}

		if !sess.paused && machine.SoundTimer() > 0 {
			hal.beeper.play()
		}
	}

	return nil
}
