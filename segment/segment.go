package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path"
	"slices"
	"sync"
)

const (
	Filename = "shared_memory.bin"

	magic      = "LEDGERDB"
	headerSize = len(magic) + 8 + 4

	// Block header = NameLength(2) + DataLength(4) + CRC32(4)
	blockHeaderSize = 10
)

var (
	ErrSegmentFull        = errors.New("segment full")
	ErrCorrupted          = errors.New("segment corrupted")
	ErrIncompatibleLayout = errors.New("incompatible on-disk layout")
	ErrDirty              = errors.New("database dirty flag is set")
	ErrReadOnly           = errors.New("segment is read only")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Segment is the single backing file of a database. It holds one named
// block per registered collection and never grows beyond its capacity.
type Segment struct {
	filename string
	capacity uint64
	readOnly bool
	blocks   map[string][]byte
	mutex    sync.Mutex
}

// Open loads the segment stored in dir. A capacity of 0 means unlimited,
// an existing segment never shrinks.
func Open(dir string, capacity uint64, readOnly bool) (*Segment, error) {

	s := &Segment{
		filename: path.Join(dir, Filename),
		capacity: capacity,
		readOnly: readOnly,
		blocks:   map[string][]byte{},
	}

	f, err := os.Open(s.filename)
	if errors.Is(err, os.ErrNotExist) && !readOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	stored, err := s.load(bufio.NewReaderSize(f, 1024*1024))
	if err != nil {
		return nil, err
	}
	if stored == 0 || (capacity != 0 && stored > capacity) {
		s.capacity = stored
	}

	return s, nil
}

func (s *Segment) load(r io.Reader) (uint64, error) {

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrCorrupted, err)
	}
	if string(header[:len(magic)]) != magic {
		return 0, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	capacity := binary.LittleEndian.Uint64(header[len(magic):])
	count := binary.LittleEndian.Uint32(header[len(magic)+8:])

	blockHeader := make([]byte, blockHeaderSize)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, blockHeader); err != nil {
			return 0, fmt.Errorf("%w: block %d header: %v", ErrCorrupted, i, err)
		}
		nameLength := binary.LittleEndian.Uint16(blockHeader[0:])
		dataLength := binary.LittleEndian.Uint32(blockHeader[2:])
		checksum := binary.LittleEndian.Uint32(blockHeader[6:])

		payload := make([]byte, int(nameLength)+int(dataLength))
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, fmt.Errorf("%w: block %d payload: %v", ErrCorrupted, i, err)
		}
		if crc32.Checksum(payload, crcTable) != checksum {
			return 0, fmt.Errorf("%w: block %d checksum mismatch", ErrCorrupted, i)
		}

		s.blocks[string(payload[:nameLength])] = payload[nameLength:]
	}

	return capacity, nil
}

func (s *Segment) Find(name string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, found := s.blocks[name]
	return data, found
}

// Put replaces the named block. It fails with ErrSegmentFull when the block
// does not fit.
func (s *Segment) Put(name string, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}

	used := s.used() + blockSize(name, data)
	if previous, exists := s.blocks[name]; exists {
		used -= blockSize(name, previous)
	}
	if s.capacity != 0 && used > s.capacity {
		return fmt.Errorf("put '%s': %w: %d bytes needed, capacity %d", name, ErrSegmentFull, used, s.capacity)
	}

	s.blocks[name] = data
	return nil
}

func blockSize(name string, data []byte) uint64 {
	return uint64(blockHeaderSize + len(name) + len(data))
}

func (s *Segment) used() uint64 {
	used := uint64(headerSize)
	for name, data := range s.blocks {
		used += blockSize(name, data)
	}
	return used
}

func (s *Segment) Used() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.used()
}

func (s *Segment) Capacity() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.capacity
}

// Free returns the bytes still available, math.MaxUint64 when unlimited.
func (s *Segment) Free() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.capacity == 0 {
		return math.MaxUint64
	}
	used := s.used()
	if used >= s.capacity {
		return 0
	}
	return s.capacity - used
}

// Grow adds size bytes to the capacity.
func (s *Segment) Grow(size uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.readOnly {
		return ErrReadOnly
	}
	if s.capacity != 0 {
		s.capacity += size
	}
	return nil
}

func (s *Segment) Names() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	names := make([]string, 0, len(s.blocks))
	for name := range s.blocks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Flush writes every block to a temporary file and renames it over the
// segment.
func (s *Segment) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.readOnly {
		return nil
	}

	if s.capacity != 0 && s.used() > s.capacity {
		return fmt.Errorf("flush: %w", ErrSegmentFull)
	}

	tmp := s.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	w := bufio.NewWriterSize(f, 1024*1024)
	err = s.write(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("flush: %w", err)
	}

	return os.Rename(tmp, s.filename)
}

func (s *Segment) write(w io.Writer) error {

	header := make([]byte, headerSize)
	copy(header, magic)
	binary.LittleEndian.PutUint64(header[len(magic):], s.capacity)
	binary.LittleEndian.PutUint32(header[len(magic)+8:], uint32(len(s.blocks)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	names := make([]string, 0, len(s.blocks))
	for name := range s.blocks {
		names = append(names, name)
	}
	slices.Sort(names)

	blockHeader := make([]byte, blockHeaderSize)
	for _, name := range names {
		data := s.blocks[name]
		payload := bytes.NewBuffer(make([]byte, 0, len(name)+len(data)))
		payload.WriteString(name)
		payload.Write(data)

		binary.LittleEndian.PutUint16(blockHeader[0:], uint16(len(name)))
		binary.LittleEndian.PutUint32(blockHeader[2:], uint32(len(data)))
		binary.LittleEndian.PutUint32(blockHeader[6:], crc32.Checksum(payload.Bytes(), crcTable))

		if _, err := w.Write(blockHeader); err != nil {
			return err
		}
		if _, err := w.Write(payload.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

func (s *Segment) Close() error {
	return s.Flush()
}
