package audio

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// Library resolves catalog file names against the sounds directory and keeps
// a cache of amplified WAV renderings.
type Library struct {
	fs        afero.Fs
	soundsDir string
	ampDir    string
}

func NewLibrary(fs afero.Fs, soundsDir, ampDir string) *Library {
	return &Library{fs: fs, soundsDir: soundsDir, ampDir: ampDir}
}

// Path returns the location of file; relative names live in the sounds directory.
func (l *Library) Path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(l.soundsDir, file)
}

// Resolve returns the path of file, or ErrSoundMissing.
func (l *Library) Resolve(file string) (string, error) {
	path := l.Path(file)
	info, err := l.fs.Stat(path)
	if err != nil || info.IsDir() {
		return "", missing(path)
	}
	return path, nil
}

// List returns the audio files in the sounds directory, sorted by name.
func (l *Library) List() ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.soundsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Save stores an uploaded sound under its base name and returns that name.
func (l *Library) Save(name string, r io.Reader) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid sound file name %q", name)
	}
	if err := l.fs.MkdirAll(l.soundsDir, 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteReader(l.fs, filepath.Join(l.soundsDir, base), r); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", base, err)
	}
	return base, nil
}

// Amplified returns a copy of the WAV file at path with every sample scaled by
// gain (at most 2). Non-WAV files and gains <= 1 return path unchanged. Results
// are cached in the amp directory and reused across restarts.
func (l *Library) Amplified(path string, gain float64) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".wav") || gain <= 1 {
		return path, nil
	}
	gain = ClampVolume(gain)

	key := ampKey(path, gain)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(l.ampDir, fmt.Sprintf("%s_x%d_%s.wav", stem, int(gain*100), key[:8]))
	if ok, _ := afero.Exists(l.fs, dst); ok {
		return dst, nil
	}

	if err := l.fs.MkdirAll(l.ampDir, 0o755); err != nil {
		return "", err
	}
	if err := l.amplify(path, dst, gain); err != nil {
		l.fs.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (l *Library) amplify(src, dst string, gain float64) error {
	in, err := l.fs.Open(src)
	if err != nil {
		return missing(src)
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", src)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}

	depth := int(dec.BitDepth)
	if depth < 16 {
		return fmt.Errorf("unsupported bit depth %d in %s", depth, src)
	}
	hi := 1<<(depth-1) - 1
	lo := -(1 << (depth - 1))
	for i, s := range buf.Data {
		v := int(float64(s) * gain)
		if v > hi {
			v = hi
		} else if v < lo {
			v = lo
		}
		buf.Data[i] = v
	}

	out, err := l.fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, int(dec.SampleRate), depth, int(dec.NumChans), int(dec.WavAudioFormat))
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return enc.Close()
}

func ampKey(path string, gain float64) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%.3f", path, gain)))
	return hex.EncodeToString(sum[:])
}
