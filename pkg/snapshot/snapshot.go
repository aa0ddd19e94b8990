package snapshot

import (
	"bytes"
	"context"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Snapshot is the memory and register state of a process at one instant.
// It must not be modified once returned by Capture or Document.Snapshot.
type Snapshot struct {
	Registers RegisterSet
	Regions   []Region
	Chunks    *ChunkStore
}

// Stats summarises a snapshot.
type Stats struct {
	Regions         int
	ReadableRegions int
	Pages           int
	Chunks          int
	CapturedBytes   uint64
	StoredBytes     int
}

// Capture records the registers and every mapping of the stopped process behind in.
// The process must stay stopped until Capture returns.
func Capture(ctx context.Context, in Inspector) (*Snapshot, error) {
	log := logger.Get(ctx)

	regs, err := CaptureRegisters(in)
	if err != nil {
		return nil, err
	}

	maps, err := in.MemoryMaps()
	if err != nil {
		return nil, errors.Wrap(err, "listing memory maps failed")
	}

	s := &Snapshot{
		Registers: regs,
		Regions:   make([]Region, 0, len(maps)),
		Chunks:    NewChunkStore(),
	}
	for _, m := range maps {
		region, err := captureRegion(log, s.Chunks, in, m)
		if err != nil {
			return nil, err
		}
		s.Regions = append(s.Regions, region)
	}

	stats := s.Stats()
	log.Info("Snapshot captured",
		zap.Int("regions", stats.Regions),
		zap.Int("readableRegions", stats.ReadableRegions),
		zap.Int("pages", stats.Pages),
		zap.Int("chunks", stats.Chunks),
		zap.Uint64("capturedBytes", stats.CapturedBytes),
		zap.Int("storedBytes", stats.StoredBytes))
	return s, nil
}

func captureRegion(log *zap.Logger, store *ChunkStore, in MemoryReader, m MemoryMap) (Region, error) {
	if !m.Readable {
		log.Warn("Unable to dump region, not readable",
			zap.String("hint", m.Hint), zap.String("start", hexAddr(m.Start)))
		return EncodeRegion(store, m, nil)
	}

	data, err := in.ReadMemory(m.Start, m.End)
	switch {
	case errors.Is(err, ErrRegionUnreadable):
		log.Warn("Unable to dump region, became unreadable",
			zap.String("hint", m.Hint), zap.String("start", hexAddr(m.Start)), zap.Error(err))
		return UnreadableRegion(m), nil
	case err != nil:
		return Region{}, errors.Wrapf(err, "reading region %s failed", m)
	}

	region, err := EncodeRegion(store, m, data)
	if err != nil {
		return Region{}, err
	}
	log.Debug("Region captured",
		zap.String("hint", m.Hint), zap.String("start", hexAddr(m.Start)), zap.Int("pages", len(region.Pages)))
	return region, nil
}

// RegionBytes reconstructs the bytes of the i-th region from its pages.
func (s *Snapshot) RegionBytes(i int) ([]byte, error) {
	if i < 0 || i >= len(s.Regions) {
		return nil, errors.Errorf("region index %d out of range [0,%d)", i, len(s.Regions))
	}
	region := s.Regions[i]
	buf := bytes.NewBuffer(make([]byte, 0, len(region.Pages)*DefaultChunkSize))
	for _, key := range region.Pages {
		chunk, exists := s.Chunks.Get(key)
		if !exists {
			return nil, errors.Wrapf(ErrCorruptDocument, "region %s references missing chunk %s",
				region.Map(), key)
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

// Stats returns counters describing the snapshot.
func (s *Snapshot) Stats() Stats {
	stats := Stats{
		Regions:     len(s.Regions),
		Chunks:      s.Chunks.Len(),
		StoredBytes: s.Chunks.Bytes(),
	}
	for _, r := range s.Regions {
		if !r.Readable {
			continue
		}
		stats.ReadableRegions++
		stats.Pages += len(r.Pages)
		stats.CapturedBytes += r.End - r.Start
	}
	return stats
}
