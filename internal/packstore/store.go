// Package packstore persists CoinPacks. The fixed layers are memory mapped
// files with one constant size sector slot per sector index, the optional
// final tier is an ordered key-value store keyed by sector index.
//
// A write of several packs goes through a journal first, so that after a
// crash the layers hold either all of them or none.
package packstore

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/logging"
)

const (
	// MaxLayers counts the fixed layers plus the final tier.
	MaxLayers = 4
	// MaxPacksPerWrite bounds one atomic write.
	MaxPacksPerWrite = 4

	journalFileName = "journal.dat"
)

type Config struct {
	Dir         string
	SectorCount uint32
	// SectorSizes holds the sector size in bytes of each fixed layer,
	// layer 0 first.
	SectorSizes []int
	// AtomicSectorWrites lets a single layer 0 pack skip the journal. Only
	// safe when the device never tears a sector sized write.
	AtomicSectorWrites bool
}

func (c *Config) validate(hasFinalTier bool) error {
	if c.SectorCount == 0 {
		return errors.New("sector count must be positive")
	}
	if len(c.SectorSizes) == 0 {
		return errors.New("at least one fixed layer is required")
	}
	layers := len(c.SectorSizes)
	if hasFinalTier {
		layers++
	}
	if layers > MaxLayers {
		return errors.Errorf("%d layers configured, at most %d supported", layers, MaxLayers)
	}
	for i, size := range c.SectorSizes {
		if size < coinpack.HeaderSize {
			return errors.Errorf("layer %d sector size %d is below the pack header size", i, size)
		}
	}
	return nil
}

type LayerStats struct {
	Layer            int   `json:"layer"`
	Budget           int   `json:"budget"`
	Sectors          int   `json:"sectors"`
	Coins            int   `json:"coins"`
	Bytes            int64 `json:"bytes"`
	OutpointSigs     int   `json:"outpoint_sigs"`
	SaturatedFilters int   `json:"saturated_filters"`
	FullestSector    int   `json:"fullest_sector_bytes"`
}

type LayeredPackStore struct {
	cfg     Config
	layers  []*mmapLayer
	final   KeyValueStore
	journal *journal

	writeColor uint8
	scratch    []byte
}

// Open maps the fixed layers under cfg.Dir. final may be nil, in which case
// the deepest fixed layer is the last one.
func Open(cfg Config, final KeyValueStore) (*LayeredPackStore, error) {
	if err := cfg.validate(final != nil); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, err
	}

	s := &LayeredPackStore{cfg: cfg, final: final}
	for i, size := range cfg.SectorSizes {
		path := filepath.Join(cfg.Dir, fmt.Sprintf("layer-%d.dat", i))
		l, err := openMmapLayer(path, size, cfg.SectorCount)
		if err != nil {
			s.closeLayers()
			return nil, err
		}
		s.layers = append(s.layers, l)
	}

	j, err := openJournal(filepath.Join(cfg.Dir, journalFileName))
	if err != nil {
		s.closeLayers()
		return nil, err
	}
	s.journal = j

	logging.L.Debug().
		Str("dir", cfg.Dir).
		Uint32("sectors", cfg.SectorCount).
		Ints("sector_sizes", cfg.SectorSizes).
		Bool("final_tier", final != nil).
		Msg("pack store opened")
	return s, nil
}

// JournalPath is where a store rooted at dir keeps its journal.
func JournalPath(dir string) string {
	return filepath.Join(dir, journalFileName)
}

func (s *LayeredPackStore) LayerCount() int {
	if s.final != nil {
		return len(s.layers) + 1
	}
	return len(s.layers)
}

func (s *LayeredPackStore) FixedLayerCount() int { return len(s.layers) }

func (s *LayeredPackStore) HasFinalTier() bool { return s.final != nil }

func (s *LayeredPackStore) SectorCount() uint32 { return s.cfg.SectorCount }

// SectorBudget is the maximum pack size of layer. The final tier is only
// bounded by the pack header.
func (s *LayeredPackStore) SectorBudget(layer int) int {
	if layer < len(s.layers) {
		return s.layers[layer].sectorSize
	}
	return math.MaxInt32
}

// Read returns the pack stored at (layer, sector). Packs of the fixed
// layers are views into the mapping and stay valid until the next Write
// touching the same sector.
func (s *LayeredPackStore) Read(layer int, sector uint32) (coinpack.CoinPack, error) {
	if layer < 0 || layer >= s.LayerCount() || sector >= s.cfg.SectorCount {
		return nil, errors.Wrapf(ErrBadCoordinates, "read layer %d sector %d", layer, sector)
	}

	var raw []byte
	if layer < len(s.layers) {
		raw = s.layers[layer].sector(sector)
	} else {
		v, ok, err := s.final.TryGet(sector)
		if err != nil {
			return nil, errors.Wrapf(err, "final tier sector %d", sector)
		}
		if !ok {
			return coinpack.NewEmpty(layer, sector), nil
		}
		raw = v
	}
	return checkSector(raw, layer, sector)
}

func checkSector(raw []byte, layer int, sector uint32) (coinpack.CoinPack, error) {
	if len(raw) < coinpack.HeaderSize {
		return nil, errors.Wrapf(ErrCorruptedSector, "layer %d sector %d holds %d bytes", layer, sector, len(raw))
	}
	p := coinpack.CoinPack(raw)
	switch v := p.Version(); {
	case v == 0:
		return nil, errors.Wrapf(ErrCorruptedSector, "layer %d sector %d never initialized", layer, sector)
	case v != coinpack.Version:
		return nil, errors.Wrapf(ErrUnknownVersion, "layer %d sector %d version %d", layer, sector, v)
	}
	if p.LayerIndex() != layer || p.SectorIndex() != sector {
		return nil, errors.Wrapf(ErrCorruptedSector,
			"layer %d sector %d stamped as layer %d sector %d",
			layer, sector, p.LayerIndex(), p.SectorIndex())
	}
	size := p.SizeInBytes()
	if size < coinpack.HeaderSize || size > len(raw) {
		return nil, errors.Wrapf(ErrCorruptedSector, "layer %d sector %d pack size %d", layer, sector, size)
	}
	return p[:size:size], nil
}

// Write stores packs as one atomic unit. Each pack carries its own layer
// and sector in its header.
func (s *LayeredPackStore) Write(packs ...coinpack.CoinPack) error {
	if len(packs) == 0 {
		return nil
	}
	if len(packs) > MaxPacksPerWrite {
		return errors.Errorf("%d packs in one write, at most %d", len(packs), MaxPacksPerWrite)
	}
	for _, p := range packs {
		if err := s.checkWritable(p); err != nil {
			return err
		}
	}

	buf := s.scratch[:0]
	for i, p := range packs {
		start := len(buf)
		buf = append(buf, p[:p.SizeInBytes()]...)
		coinpack.CoinPack(buf[start:]).SetWriteStamp(s.writeColor, uint8(len(packs)-i))
	}
	s.scratch = buf[:0]

	if len(packs) == 1 && packs[0].LayerIndex() == 0 && s.cfg.AtomicSectorWrites {
		if err := s.apply(coinpack.CoinPack(buf)); err != nil {
			return err
		}
		s.writeColor++
		return nil
	}

	if err := s.journal.write(buf); err != nil {
		return err
	}
	if err := s.applyAll(buf); err != nil {
		return err
	}
	if err := s.journal.clear(); err != nil {
		return err
	}
	s.writeColor++
	return nil
}

func (s *LayeredPackStore) checkWritable(p coinpack.CoinPack) error {
	if len(p) < coinpack.HeaderSize || p.SizeInBytes() > len(p) {
		return errors.Wrap(ErrCorruptedSector, "malformed pack handed to write")
	}
	layer, sector := p.LayerIndex(), p.SectorIndex()
	if layer >= s.LayerCount() || sector >= s.cfg.SectorCount {
		return errors.Wrapf(ErrBadCoordinates, "write layer %d sector %d", layer, sector)
	}
	if p.SizeInBytes() > s.SectorBudget(layer) {
		return errors.Wrapf(ErrPackTooLarge,
			"layer %d sector %d: %d bytes, budget %d",
			layer, sector, p.SizeInBytes(), s.SectorBudget(layer))
	}
	return nil
}

// applyAll applies the packs laid out back to back in buf.
func (s *LayeredPackStore) applyAll(buf []byte) error {
	for off := 0; off < len(buf); {
		p := coinpack.CoinPack(buf[off:])
		size := p.SizeInBytes()
		if err := s.apply(p[:size]); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func (s *LayeredPackStore) apply(p coinpack.CoinPack) error {
	layer, sector := p.LayerIndex(), p.SectorIndex()
	if layer < len(s.layers) {
		l := s.layers[layer]
		copy(l.sector(sector), p)
		return errors.Wrapf(l.flush(sector), "flush layer %d sector %d", layer, sector)
	}
	return errors.Wrapf(s.final.Set(sector, p), "final tier sector %d", sector)
}

// Initialize stamps an empty pack into every fixed sector that was never
// written. Initialized sectors are left alone, so it is safe to run on
// every start.
func (s *LayeredPackStore) Initialize() error {
	for layer, l := range s.layers {
		stamped := 0
		for sector := uint32(0); sector < s.cfg.SectorCount; sector++ {
			b := l.sector(sector)
			switch v := coinpack.CoinPack(b).Version(); v {
			case 0:
				coinpack.InitHeader(b, layer, sector)
				stamped++
			case coinpack.Version:
			default:
				return errors.Wrapf(ErrUnknownVersion, "layer %d sector %d version %d", layer, sector, v)
			}
		}
		if stamped == 0 {
			continue
		}
		if err := l.flushAll(); err != nil {
			return errors.Wrapf(err, "flush layer %d", layer)
		}
		logging.L.Info().Int("layer", layer).Int("sectors", stamped).Msg("initialized sectors")
	}
	return nil
}

// Recover replays a complete journal left by a crash and discards a torn
// one. A torn journal means the crash hit before any sector was touched.
func (s *LayeredPackStore) Recover() error {
	buf, err := s.journal.read()
	if err != nil {
		return errors.Wrap(err, "read journal")
	}
	if len(buf) == 0 {
		return nil
	}

	packs, err := ParseJournal(buf)
	if err != nil {
		if !errors.Is(err, ErrTornJournal) {
			return err
		}
		logging.L.Error().Err(err).Int("bytes", len(buf)).Msg("discarding torn journal")
		return s.journal.clear()
	}

	for _, p := range packs {
		if err = s.checkWritable(p); err != nil {
			logging.L.Error().Err(err).Msg("discarding journal with unusable pack")
			return s.journal.clear()
		}
	}
	for _, p := range packs {
		if err = s.apply(p); err != nil {
			return err
		}
	}
	s.writeColor = packs[0].WriteColor() + 1
	logging.L.Info().Int("packs", len(packs)).Uint8("color", packs[0].WriteColor()).Msg("replayed journal")
	return s.journal.clear()
}

// Stats walks every sector of layer.
func (s *LayeredPackStore) Stats(layer int) (LayerStats, error) {
	st := LayerStats{Layer: layer, Budget: s.SectorBudget(layer)}
	for sector := uint32(0); sector < s.cfg.SectorCount; sector++ {
		p, err := s.Read(layer, sector)
		if err != nil {
			return st, err
		}
		if p.CoinCount() == 0 && p.OutpointSigCount() == 0 && !p.OutpointSigsOverflow() {
			continue
		}
		st.Sectors++
		st.Coins += p.CoinCount()
		st.Bytes += int64(p.SizeInBytes())
		st.OutpointSigs += p.OutpointSigCount()
		if p.OutpointSigsOverflow() {
			st.SaturatedFilters++
		}
		if p.SizeInBytes() > st.FullestSector {
			st.FullestSector = p.SizeInBytes()
		}
	}
	return st, nil
}

func (s *LayeredPackStore) Close() error {
	var first error
	if s.journal != nil {
		first = s.journal.close()
	}
	if err := s.closeLayers(); err != nil && first == nil {
		first = err
	}
	if s.final != nil {
		if err := s.final.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *LayeredPackStore) closeLayers() error {
	var first error
	for _, l := range s.layers {
		if err := l.close(); err != nil && first == nil {
			first = err
		}
	}
	s.layers = nil
	return first
}
