package audio

import (
	"go.uber.org/zap"
)

// Sink is what the engine plays through. Local sinks check the file and
// render gain above 1 into an amplified copy; remote sinks pass the catalog
// file name through untouched.
type Sink struct {
	lib    *Library
	player Player
	local  bool
	log    *zap.Logger
}

// NewLocalSink plays files from lib on this machine.
func NewLocalSink(lib *Library, player Player, log *zap.Logger) *Sink {
	return &Sink{lib: lib, player: player, local: true, log: log}
}

// NewRemoteSink sends file names to a remote player that owns its own files.
func NewRemoteSink(player Player, log *zap.Logger) *Sink {
	return &Sink{player: player, log: log}
}

func (s *Sink) Play(file string, volume float64) error {
	volume = ClampVolume(volume)
	if !s.local {
		return s.player.Play(file, volume)
	}

	path, err := s.lib.Resolve(file)
	if err != nil {
		return err
	}
	if volume > 1 {
		amp, err := s.lib.Amplified(path, volume)
		if err != nil {
			s.log.Warn("amplification failed, playing at full volume", zap.String("file", path), zap.Error(err))
		} else {
			path = amp
		}
		volume = 1
	}
	return s.player.Play(path, volume)
}

func (s *Sink) Stop() error {
	return s.player.Stop()
}
