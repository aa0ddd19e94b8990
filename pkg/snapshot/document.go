package snapshot

import (
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Document is the persisted form of a snapshot. It encodes to a JSON object with exactly the
// chunks, maps and regs fields, all keys sorted.
type Document struct {
	Chunks map[Key]string `json:"chunks"`
	Maps   []RegionRecord `json:"maps"`
	Regs   RegisterSet    `json:"regs"`
}

// RegionRecord is the persisted form of a region.
type RegionRecord struct {
	Hint      string `json:"hint"`
	PageEnd   uint64 `json:"page_end"`
	PageStart uint64 `json:"page_start"`
	Pages     []Key  `json:"pages"`
	PermR     bool   `json:"perm_r"`
	PermW     bool   `json:"perm_w"`
	PermX     bool   `json:"perm_x"`
}

// registerRecord orders register fields by name.
type registerRecord struct {
	R10    uint64 `json:"r10"`
	R11    uint64 `json:"r11"`
	R12    uint64 `json:"r12"`
	R13    uint64 `json:"r13"`
	R14    uint64 `json:"r14"`
	R15    uint64 `json:"r15"`
	R8     uint64 `json:"r8"`
	R9     uint64 `json:"r9"`
	RAX    uint64 `json:"rax"`
	RBP    uint64 `json:"rbp"`
	RBX    uint64 `json:"rbx"`
	RCX    uint64 `json:"rcx"`
	RDI    uint64 `json:"rdi"`
	RDX    uint64 `json:"rdx"`
	RFLAGS uint64 `json:"rflags"`
	RIP    uint64 `json:"rip"`
	RSI    uint64 `json:"rsi"`
	RSP    uint64 `json:"rsp"`
}

// MarshalJSON implements json.Marshaler.
func (r RegisterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(registerRecord{
		R10: r.R10, R11: r.R11, R12: r.R12, R13: r.R13, R14: r.R14, R15: r.R15, R8: r.R8, R9: r.R9,
		RAX: r.RAX, RBP: r.RBP, RBX: r.RBX, RCX: r.RCX, RDI: r.RDI, RDX: r.RDX,
		RFLAGS: r.RFLAGS, RIP: r.RIP, RSI: r.RSI, RSP: r.RSP,
	})
}

// UnmarshalJSON implements json.Unmarshaler. All registers must be present.
func (r *RegisterSet) UnmarshalJSON(data []byte) error {
	var values map[string]uint64
	if err := json.Unmarshal(data, &values); err != nil {
		return errors.WithStack(err)
	}
	regs, err := NewRegisterSet(values)
	if err != nil {
		return err
	}
	*r = regs
	return nil
}

// NewDocument renders a snapshot into its persisted form.
func NewDocument(s *Snapshot) *Document {
	doc := &Document{
		Chunks: make(map[Key]string, s.Chunks.Len()),
		Regs:   s.Registers,
		Maps: lo.Map(s.Regions, func(r Region, _ int) RegionRecord {
			return RegionRecord{
				Hint:      r.Hint,
				PageEnd:   r.End,
				PageStart: r.Start,
				Pages:     append(make([]Key, 0, len(r.Pages)), r.Pages...),
				PermR:     r.Readable,
				PermW:     r.Writable,
				PermX:     r.Executable,
			}
		}),
	}
	for _, key := range s.Chunks.Keys() {
		chunk, _ := s.Chunks.Get(key)
		doc.Chunks[key] = base64.StdEncoding.EncodeToString(chunk)
	}
	return doc
}

// Encode writes the document as indented JSON. Identical documents produce identical bytes.
func (d *Document) Encode(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return errors.WithStack(encoder.Encode(d))
}

// DecodeDocument reads a document written by Encode.
func DecodeDocument(r io.Reader) (*Document, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	var raw struct {
		Chunks *map[Key]string `json:"chunks"`
		Maps   *[]RegionRecord `json:"maps"`
		Regs   *RegisterSet    `json:"regs"`
	}
	if err := decoder.Decode(&raw); err != nil {
		return nil, errors.Wrapf(ErrCorruptDocument, "decoding failed: %s", err)
	}
	if raw.Chunks == nil || raw.Maps == nil || raw.Regs == nil {
		return nil, errors.Wrap(ErrCorruptDocument, "chunks, maps and regs are required")
	}
	doc := &Document{
		Chunks: *raw.Chunks,
		Maps:   *raw.Maps,
		Regs:   *raw.Regs,
	}
	for i := range doc.Maps {
		if doc.Maps[i].Pages == nil {
			doc.Maps[i].Pages = []Key{}
		}
	}
	return doc, nil
}

// DecodeChunk returns the raw bytes of a chunk payload, checking it against its key.
func DecodeChunk(key Key, payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptDocument, "chunk %s is not base64: %s", key, err)
	}
	if len(data) == 0 || len(data) > DefaultChunkSize {
		return nil, errors.Wrapf(ErrCorruptDocument, "chunk %s has %d bytes", key, len(data))
	}
	if actual := Address(data); actual != key {
		return nil, errors.Wrapf(ErrCorruptDocument, "chunk %s addresses to %s", key, actual)
	}
	return data, nil
}

// Validate checks the extent and page list of the region against chunks without decoding
// payloads.
func (r RegionRecord) Validate(chunks map[Key]string) error {
	m := r.Map()
	if r.PageEnd <= r.PageStart {
		return errors.Wrapf(ErrCorruptDocument, "region %s has no extent", m)
	}
	if !r.PermR {
		if len(r.Pages) != 0 {
			return errors.Wrapf(ErrCorruptDocument, "unreadable region %s has pages", m)
		}
		return nil
	}
	expected := pageCount(r.PageEnd - r.PageStart)
	if uint64(len(r.Pages)) != expected {
		return errors.Wrapf(ErrCorruptDocument, "region %s has %d pages, expected %d", m, len(r.Pages),
			expected)
	}
	for _, key := range r.Pages {
		if _, exists := chunks[key]; !exists {
			return errors.Wrapf(ErrCorruptDocument, "region %s references missing chunk %s", m, key)
		}
	}
	return nil
}

// pageCount returns the number of pages covering size bytes without overflowing near 2^64.
func pageCount(size uint64) uint64 {
	count := size / DefaultChunkSize
	if size%DefaultChunkSize != 0 {
		count++
	}
	return count
}

// Map returns the mapping described by the record.
func (r RegionRecord) Map() MemoryMap {
	return MemoryMap{
		Start:      r.PageStart,
		End:        r.PageEnd,
		Readable:   r.PermR,
		Writable:   r.PermW,
		Executable: r.PermX,
		Hint:       r.Hint,
	}
}

// Snapshot decodes the document, verifying every chunk and the reconstructed size of every
// region.
func (d *Document) Snapshot() (*Snapshot, error) {
	store := NewChunkStore()
	for key, payload := range d.Chunks {
		data, err := DecodeChunk(key, payload)
		if err != nil {
			return nil, err
		}
		if _, err := store.Put(data); err != nil {
			return nil, err
		}
	}

	s := &Snapshot{
		Registers: d.Regs,
		Regions:   make([]Region, 0, len(d.Maps)),
		Chunks:    store,
	}
	for _, record := range d.Maps {
		if err := record.Validate(d.Chunks); err != nil {
			return nil, err
		}
		region := newRegion(record.Map())
		region.Pages = append(make([]Key, 0, len(record.Pages)), record.Pages...)

		var size uint64
		for i, key := range region.Pages {
			chunk, _ := store.Get(key)
			if i < len(region.Pages)-1 && len(chunk) != DefaultChunkSize {
				return nil, errors.Wrapf(ErrCorruptDocument, "region %s: page %d has %d bytes", record.Map(), i,
					len(chunk))
			}
			size += uint64(len(chunk))
		}
		if region.Readable && size != region.End-region.Start {
			return nil, errors.Wrapf(ErrCorruptDocument, "region %s reconstructs to %d bytes", record.Map(), size)
		}
		s.Regions = append(s.Regions, region)
	}
	return s, nil
}
