// Package rng provides the random number stream used by simulation models and
// persists its state next to checkpoints.
package rng

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
)

// Source is a seeded PCG stream whose state can be saved per checkpoint slot.
type Source struct {
	pcg  *rand.PCG
	rand *rand.Rand

	dir    string
	prefix string
}

// NewSource creates a stream from a seed. State files are written to
// dir/prefix<slot>.
func NewSource(seed uint64, dir, prefix string) *Source {
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	return &Source{
		pcg:    pcg,
		rand:   rand.New(pcg),
		dir:    dir,
		prefix: prefix,
	}
}

// Float64 returns a number in [0, 1).
func (s *Source) Float64() float64 {
	return s.rand.Float64()
}

// Bernoulli returns true with probability p.
func (s *Source) Bernoulli(p float64) bool {
	return s.rand.Float64() < p
}

// IntN returns a number in [0, n).
func (s *Source) IntN(n int) int {
	return s.rand.IntN(n)
}

// Exponential returns an exponentially distributed number with the given
// rate.
func (s *Source) Exponential(rate float64) float64 {
	return -math.Log(1-s.rand.Float64()) / rate
}

// StatePath returns the file that holds the state for a slot.
func (s *Source) StatePath(slot int) string {
	return filepath.Join(s.dir, s.prefix+strconv.Itoa(slot))
}

// SaveState writes the generator state for the given slot. The file is
// synced and then renamed into place, so a slot never holds a partial state.
func (s *Source) SaveState(slot int) error {
	data, err := s.pcg.MarshalBinary()
	if err != nil {
		return err
	}

	path := s.StatePath(slot)
	tmp := path + ".tmp"

	err = writeSynced(tmp, data)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rng: save state: %w", err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("rng: save state: %w", err)
	}

	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}

	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}

	return err
}

// LoadState restores the generator state saved for the given slot.
func (s *Source) LoadState(slot int) error {
	data, err := os.ReadFile(s.StatePath(slot))
	if err != nil {
		return fmt.Errorf("rng: load state: %w", err)
	}

	err = s.pcg.UnmarshalBinary(data)
	if err != nil {
		return fmt.Errorf("rng: corrupt state in %s: %w", s.StatePath(slot), err)
	}

	return nil
}

// RemoveStates deletes the state files of all slots.
func (s *Source) RemoveStates(numSlots int) error {
	for slot := 0; slot < numSlots; slot++ {
		err := os.Remove(s.StatePath(slot))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}
