// Package mapped reads close series stored as fixed-size little endian
// records, one memory-mapped file per symbol.
package mapped

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/peter-kozarec/frontier/pkg/market"
	"golang.org/x/exp/mmap"
)

// RecordSize is the encoded size of a Record.
const RecordSize = 16

var ErrEOF = errors.New("end of close series")

// Record is the on-disk layout: unix nanoseconds followed by the close.
type Record struct {
	TimeStamp int64
	Close     float64
}

func (r Record) ToClose() market.Close {
	return market.Close{
		TimeStamp: time.Unix(0, r.TimeStamp).UTC(),
		Price:     r.Close,
	}
}

// Write appends records to w in the layout Source reads.
func Write(w io.Writer, records []Record) error {
	for i, r := range records {
		if err := binary.Write(w, binary.LittleEndian, r); err != nil {
			return fmt.Errorf("unable to write record %d: %w", i, err)
		}
	}
	return nil
}

type Source struct {
	dataSourceName string
	reader         *mmap.ReaderAt
}

func NewSource(dataSourceName string) *Source {
	return &Source{
		dataSourceName: dataSourceName,
	}
}

func (s *Source) Open() error {
	var err error
	s.reader, err = mmap.Open(s.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", s.dataSourceName, err)
	}
	if size := s.reader.Len(); size%RecordSize != 0 {
		_ = s.reader.Close()
		s.reader = nil
		return fmt.Errorf("data source %q size %d is not a multiple of %d", s.dataSourceName, size, RecordSize)
	}
	return nil
}

func (s *Source) Close() {
	if s.reader != nil {
		_ = s.reader.Close()
	}
}

func (s *Source) EntryCount() int64 {
	return int64(s.reader.Len() / RecordSize)
}

func (s *Source) Read(index int64, record *Record) error {
	var buffer [RecordSize]byte

	n, err := s.reader.ReadAt(buffer[:], index*RecordSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if n < RecordSize {
		return ErrEOF
	}

	record.TimeStamp = int64(binary.LittleEndian.Uint64(buffer[0:8]))
	record.Close = math.Float64frombits(binary.LittleEndian.Uint64(buffer[8:16]))
	return nil
}

// Seek returns the index of the first record at or after ts. Records must be
// sorted by timestamp.
func (s *Source) Seek(ts int64) (int64, error) {
	var entry Record

	low := int64(0)
	high := s.EntryCount() - 1

	for low <= high {
		mid := (low + high) / 2

		if err := s.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.TimeStamp < ts {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	return low, nil
}
