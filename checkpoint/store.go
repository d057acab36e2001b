// Package checkpoint persists full simulation snapshots in two alternating
// slots, so that a crash while writing never destroys the last good snapshot.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sarchlab/hostsim/sim"
)

// NumSlots is the number of alternating payload slots.
const NumSlots = 2

const excerptLimit = 256

// Store owns the checkpoint marker and the payload slots.
type Store struct {
	*sim.HookableBase

	dir        string
	base       string
	compressed bool
	random     sim.RandomState
	logger     *log.Logger

	lastSlot      int
	lastSlotKnown bool
}

// NewStore creates a store whose marker is dir/base and whose payloads are
// dir/base0 and dir/base1.
func NewStore(dir, base string) *Store {
	return &Store{
		HookableBase: sim.NewHookableBase(),
		dir:          dir,
		base:         base,
		logger:       log.Default(),
	}
}

// WithCompression selects gzip-compressed payloads for future writes. Reads
// accept both encodings.
func (s *Store) WithCompression(compressed bool) *Store {
	s.compressed = compressed
	return s
}

// WithRandomState sets the generator whose state is saved alongside every
// payload.
func (s *Store) WithRandomState(r sim.RandomState) *Store {
	s.random = r
	return s
}

// WithLogger sets the logger that receives status lines and integrity
// discrepancies.
func (s *Store) WithLogger(l *log.Logger) *Store {
	s.logger = l
	return s
}

// MarkerPath returns the path of the marker file.
func (s *Store) MarkerPath() string {
	return filepath.Join(s.dir, s.base)
}

// PayloadPath returns the path of a slot's payload in the given encoding.
func (s *Store) PayloadPath(slot int, compressed bool) string {
	name := s.base + strconv.Itoa(slot)
	if compressed {
		name += ".gz"
	}

	return filepath.Join(s.dir, name)
}

// HasExistingCheckpoint tells whether the marker exists and can be opened.
func (s *Store) HasExistingCheckpoint() bool {
	f, err := os.Open(s.MarkerPath())
	if err != nil {
		return false
	}

	f.Close()

	return true
}

// Write persists the clock and the blocks into the next slot and then points
// the marker at it. It returns the slot written. On failure the marker and the
// previously committed slot are left untouched.
func (s *Store) Write(clock *sim.Clock, blocks []sim.Stateful) (int, error) {
	start := time.Now()

	last, err := s.lastKnownSlot()
	if err != nil {
		return -1, err
	}

	next := (last + 1) % NumSlots

	if s.random != nil {
		err = s.random.SaveState(next)
		if err != nil {
			return -1, ioError("save random state", s.dir, err)
		}
	}

	path := s.PayloadPath(next, s.compressed)

	size, err := s.writePayload(path, clock, blocks)
	if err != nil {
		return -1, err
	}

	err = removeIfExists(s.PayloadPath(next, !s.compressed))
	if err != nil {
		return -1, ioError("remove stale payload", path, err)
	}

	err = s.writeMarker(next)
	if err != nil {
		return -1, err
	}

	s.lastSlot = next
	s.lastSlotKnown = true

	record := &Record{
		Slot:          next,
		Path:          path,
		Compressed:    s.compressed,
		Bytes:         size,
		Duration:      time.Since(start),
		SimulatedTime: clock.SimulatedTime(),
	}

	s.logger.Printf("checkpoint %d written to %s at step %d (%d bytes, %v)",
		next, path, record.SimulatedTime, size, record.Duration)

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosCheckpointWritten,
		Item:   record,
	})

	return next, nil
}

func (s *Store) writePayload(
	path string,
	clock *sim.Clock,
	blocks []sim.Stateful,
) (size int64, err error) {
	sink, err := OpenSink(path, s.compressed)
	if err != nil {
		return 0, ioError("open payload", path, err)
	}

	closed := false
	defer func() {
		if !closed {
			sink.Close()
		}
	}()

	w := &countingWriter{w: sink}

	err = clock.WriteState(w)
	if err != nil {
		return 0, ioError("write clock", path, err)
	}

	for _, b := range blocks {
		err = b.WriteState(w)
		if err != nil {
			return 0, ioError("write block "+b.Name(), path, err)
		}
	}

	closed = true

	err = sink.Close()
	if err != nil {
		return 0, ioError("close payload", path, err)
	}

	return w.n, nil
}

func (s *Store) writeMarker(slot int) error {
	marker := s.MarkerPath()
	tmp := marker + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return ioError("write marker", tmp, err)
	}

	_, err = fmt.Fprint(f, slot)
	if err == nil {
		err = f.Sync()
	}

	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(tmp)
		return ioError("write marker", tmp, err)
	}

	err = os.Rename(tmp, marker)
	if err != nil {
		return ioError("replace marker", marker, err)
	}

	return nil
}

func (s *Store) readMarker() (int, error) {
	marker := s.MarkerPath()

	data, err := os.ReadFile(marker)
	if err != nil {
		return -1, ioError("read marker", marker, err)
	}

	slot, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1, formatError("parse marker", marker, err)
	}

	if slot < 0 || slot >= NumSlots {
		return -1, formatError("parse marker", marker,
			fmt.Errorf("slot %d out of range", slot))
	}

	return slot, nil
}

// lastKnownSlot returns the slot the marker points at, or NumSlots-1 when
// there is no marker so that the first checkpoint goes into slot 0.
func (s *Store) lastKnownSlot() (int, error) {
	if s.lastSlotKnown {
		return s.lastSlot, nil
	}

	if !s.HasExistingCheckpoint() {
		return NumSlots - 1, nil
	}

	return s.readMarker()
}

// Read restores the clock and the blocks from the slot the marker points at,
// then restores the generator state of the same slot. Integrity discrepancies
// are logged and returned in the report; they do not fail the read.
func (s *Store) Read(clock *sim.Clock, blocks []sim.Stateful) (*ReadReport, error) {
	start := time.Now()

	slot, err := s.readMarker()
	if err != nil {
		return nil, err
	}

	src, path, compressed, err := s.openPayload(slot)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	report := &ReadReport{Slot: slot, Path: path, Compressed: compressed}

	err = clock.ReadState(src)
	if err != nil {
		if src.Err() != nil {
			return nil, ioError("read clock", path, src.Err())
		}

		return nil, formatError("read clock", path, err)
	}

	err = s.readBlocks(src, path, blocks, report)
	if err != nil {
		return nil, err
	}

	err = s.checkTrailingData(src, path, report)
	if err != nil {
		return nil, err
	}

	for _, d := range report.Discrepancies {
		s.logger.Printf("checkpoint: integrity discrepancy in %s: %s", path, d)
	}

	if s.random != nil {
		err = s.random.LoadState(slot)
		if err != nil {
			return nil, &Error{
				Op:   "load random state",
				Path: path,
				Kind: ErrRandomState,
				Err:  err,
			}
		}
	}

	s.lastSlot = slot
	s.lastSlotKnown = true

	s.logger.Printf("loaded checkpoint from %s at step %d",
		path, clock.SimulatedTime())

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosCheckpointRestored,
		Item: &Record{
			Slot:          slot,
			Path:          path,
			Compressed:    compressed,
			Bytes:         fileSize(path),
			Duration:      time.Since(start),
			SimulatedTime: clock.SimulatedTime(),
			Restored:      true,
		},
	})

	return report, nil
}

// openPayload tries the uncompressed payload first and falls back to the
// compressed one.
func (s *Store) openPayload(slot int) (Source, string, bool, error) {
	plainPath := s.PayloadPath(slot, false)

	src, plainErr := OpenSource(plainPath, false)
	if plainErr == nil {
		return src, plainPath, false, nil
	}

	gzPath := s.PayloadPath(slot, true)

	src, gzErr := OpenSource(gzPath, true)
	if gzErr == nil {
		return src, gzPath, true, nil
	}

	return nil, "", false, ioError("open payload", gzPath,
		errors.Join(plainErr, gzErr))
}

func (s *Store) readBlocks(
	src Source,
	path string,
	blocks []sim.Stateful,
	report *ReadReport,
) error {
	for i, b := range blocks {
		err := b.ReadState(src)
		if err == nil {
			continue
		}

		if src.Err() != nil {
			return ioError("read block "+b.Name(), path, src.Err())
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			report.add(Discrepancy{
				Kind:  DiscrepancyMissingBlock,
				Block: b.Name(),
				Err:   err,
			})
		} else {
			report.add(Discrepancy{
				Kind:  DiscrepancyUnparsedBlock,
				Block: b.Name(),
				Err:   err,
			})
		}

		for _, rest := range blocks[i+1:] {
			report.add(Discrepancy{
				Kind:  DiscrepancyMissingBlock,
				Block: rest.Name(),
			})
		}

		return nil
	}

	return nil
}

// checkTrailingData skips trailing white space and reports anything left.
func (s *Store) checkTrailingData(
	src Source,
	path string,
	report *ReadReport,
) error {
	for {
		r, _, err := src.ReadRune()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return ioError("read trailing data", path, err)
		}

		if !unicode.IsSpace(r) {
			err = src.UnreadRune()
			if err != nil {
				return ioError("read trailing data", path, err)
			}

			break
		}
	}

	excerpt := make([]byte, excerptLimit)

	n, err := io.ReadFull(src, excerpt)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ioError("read trailing data", path, err)
	}

	rest, err := io.Copy(io.Discard, src)
	if err != nil {
		return ioError("read trailing data", path, err)
	}

	report.add(Discrepancy{
		Kind:      DiscrepancyTrailingData,
		Remaining: int64(n) + rest,
		Excerpt:   string(excerpt[:n]),
	})

	return nil
}

type stateRemover interface {
	RemoveStates(numSlots int) error
}

// Clear deletes the marker, every payload and the saved generator states.
func (s *Store) Clear() error {
	paths := []string{s.MarkerPath(), s.MarkerPath() + ".tmp"}
	for slot := 0; slot < NumSlots; slot++ {
		paths = append(paths,
			s.PayloadPath(slot, false), s.PayloadPath(slot, true))
	}

	for _, p := range paths {
		err := removeIfExists(p)
		if err != nil {
			return ioError("remove", p, err)
		}
	}

	if r, ok := s.random.(stateRemover); ok {
		err := r.RemoveStates(NumSlots)
		if err != nil {
			return ioError("remove random state", s.dir, err)
		}
	}

	s.lastSlotKnown = false

	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
