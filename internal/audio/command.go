package audio

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CommandPlayer plays files by starting an external program such as ffplay or
// aplay. Args may contain {file}, {volume} (0.00-1.00) and {volume_pct} (0-100).
// A new Play interrupts the previous one.
type CommandPlayer struct {
	command string
	args    []string
	log     *zap.Logger

	mu      sync.Mutex
	current *exec.Cmd
}

func NewCommandPlayer(command string, args []string, log *zap.Logger) *CommandPlayer {
	return &CommandPlayer{command: command, args: args, log: log}
}

func (p *CommandPlayer) Play(path string, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	cmd := exec.Command(p.command, expandArgs(p.args, path, volume)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.command, err)
	}
	p.current = cmd

	go func() {
		if err := cmd.Wait(); err != nil {
			p.log.Debug("player exited", zap.String("file", path), zap.Error(err))
		}
		p.mu.Lock()
		if p.current == cmd {
			p.current = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *CommandPlayer) stopLocked() {
	if p.current == nil || p.current.Process == nil {
		return
	}
	// The process may already be gone.
	_ = p.current.Process.Kill()
	p.current = nil
}

func expandArgs(args []string, path string, volume float64) []string {
	// Gain above 1 is rendered into the file by the library.
	if volume > 1 {
		volume = 1
	}
	r := strings.NewReplacer(
		"{file}", path,
		"{volume_pct}", strconv.Itoa(int(volume*100+0.5)),
		"{volume}", strconv.FormatFloat(volume, 'f', 2, 64),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
