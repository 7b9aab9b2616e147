package audio

import (
	"errors"
	"fmt"
)

// ErrSoundMissing is returned when a sound file cannot be found.
var ErrSoundMissing = errors.New("sound file missing")

// Player starts playback of a resolved file and can interrupt it.
type Player interface {
	Play(path string, volume float64) error
	Stop() error
}

// ClampVolume limits volume to [0,2].
func ClampVolume(volume float64) float64 {
	switch {
	case volume < 0:
		return 0
	case volume > 2:
		return 2
	}
	return volume
}

func missing(path string) error {
	return fmt.Errorf("%w: %s", ErrSoundMissing, path)
}
