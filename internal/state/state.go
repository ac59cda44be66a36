// Package state persists machine snapshots to disk.
//
// The file is a gob-encoded envelope around chip8.Snapshot with a version
// number, so the layout can change without old files being misread.
package state

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/velikanov/chip8vm/internal/chip8"
)

const fileVersion = 1

type envelope struct {
	Version int
	State   chip8.Snapshot
}

// Save writes a snapshot to path, replacing any existing file.
func Save(path string, snap chip8.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create state file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(envelope{Version: fileVersion, State: snap}); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to encode state file: %w", err)
	}

	return f.Close()
}

// Load reads a snapshot previously written by Save.
func Load(path string) (chip8.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return chip8.Snapshot{}, fmt.Errorf("unable to open state file: %w", err)
	}
	defer f.Close()

	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return chip8.Snapshot{}, fmt.Errorf("unable to decode state file: %w", err)
	}

	if env.Version != fileVersion {
		return chip8.Snapshot{}, fmt.Errorf("unsupported state file version %d", env.Version)
	}

	return env.State, nil
}
