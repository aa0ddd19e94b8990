package snapshot

// MapLister enumerates the memory mappings of a stopped process in address order.
type MapLister interface {
	MemoryMaps() ([]MemoryMap, error)
}

// MemoryReader reads raw bytes of a stopped process. ReadMemory returns exactly end-start
// bytes, or an error wrapping ErrRegionUnreadable if the range is no longer readable.
type MemoryReader interface {
	ReadMemory(start, end uint64) ([]byte, error)
}

// RegisterReader reads one register of the current thread by its lowercase x86-64 name.
type RegisterReader interface {
	ReadRegister(name string) (uint64, error)
}

// Inspector gives the capture access to a stopped process.
type Inspector interface {
	MapLister
	MemoryReader
	RegisterReader
}
