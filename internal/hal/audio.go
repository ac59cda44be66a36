package hal

import (
	"encoding/binary"
	"log/slog"

	"github.com/veandco/go-sdl2/sdl"
)

const (
	sampleRate = 48000
	toneHz     = 440
	amplitude  = 6000
)

// beeper plays a square wave while the machine's sound timer is running.
// Samples are queued one frame at a time from the run loop; keeping the
// queue shallow makes the tone stop promptly when the timer hits zero.
type beeper struct {
	device sdl.AudioDeviceID
	wave   []byte
}

// newBeeper opens the default audio device. A host without audio is not
// fatal: the beeper degrades to a no-op.
func newBeeper() *beeper {
	spec := sdl.AudioSpec{
		Freq:     sampleRate,
		Format:   sdl.AUDIO_S16LSB,
		Channels: 1,
		Samples:  2048,
	}

	device, err := sdl.OpenAudioDevice("", false, &spec, nil, 0)
	if err != nil {
		slog.Warn("audio unavailable, beeper disabled", "err", err)
		return &beeper{}
	}
	slog.Debug("hal: open audio device")

	sdl.PauseAudioDevice(device, false)
	return &beeper{device: device, wave: squareWave()}
}

// squareWave renders one frame (1/60 s) of signed 16-bit mono samples.
func squareWave() []byte {
	samples := sampleRate / timerHz
	halfPeriod := sampleRate / toneHz / 2

	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude)
		if (i/halfPeriod)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// play queues one frame of tone, keeping at most two frames buffered so
// the device never runs far ahead of the sound timer.
func (b *beeper) play() {
	if b.device == 0 {
		return
	}

	if sdl.GetQueuedAudioSize(b.device) >= uint32(2*len(b.wave)) {
		return
	}

	if err := sdl.QueueAudio(b.device, b.wave); err != nil {
		slog.Error("failed to queue audio", "err", err)
	}
}

func (b *beeper) shutdown() {
	if b.device == 0 {
		return
	}
	sdl.CloseAudioDevice(b.device)
}
