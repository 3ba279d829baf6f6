package common

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Record format (little-endian), shared by WAL frames and SSTable data blocks:
//
//	[tag: u8][keyLen: u32][key]              for deletes
//	[tag: u8][keyLen: u32][key][valueLen: u32][value]  for puts
const (
	tagSize         = 1
	lengthFieldSize = 4
)

// EncodedEntrySize returns the number of bytes Encode would produce.
func EncodedEntrySize(e *Entry) int {
	size := tagSize + lengthFieldSize + len(e.Key)
	if e.Type == EntryTypePut {
		size += lengthFieldSize + len(e.Value)
	}
	return size
}

// WriteEntry encodes a single record to w. Returns the number of bytes written.
func WriteEntry(w io.Writer, e *Entry) (int, error) {
	var hdr [tagSize + lengthFieldSize]byte
	hdr[0] = byte(e.Type)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(e.Key)))

	total := 0
	n, err := w.Write(hdr[:])
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(e.Key)
	total += n
	if err != nil {
		return total, err
	}

	if e.Type != EntryTypePut {
		return total, nil
	}

	var lenBuf [lengthFieldSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
	n, err = w.Write(lenBuf[:])
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(e.Value)
	total += n
	return total, err
}

// ReadEntry decodes a single record from r. Returns (nil, nil) on a clean EOF
// at a record boundary. A record cut short mid-way, or one carrying an unknown
// tag, is reported as ErrCorruption.
func ReadEntry(r io.Reader) (*Entry, error) {
	var tagBuf [tagSize]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	switch EntryType(tagBuf[0]) {
	case EntryTypePut, EntryTypeDelete:
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrCorruption, tagBuf[0])
	}

	keyLen, err := readUint32Full(r)
	if err != nil {
		return nil, err
	}
	key, err := ReadBytes(r, uint64(keyLen))
	if err != nil {
		return nil, truncated(err)
	}

	entry := &Entry{
		Type: EntryType(tagBuf[0]),
		Key:  key,
	}
	if entry.Type == EntryTypeDelete {
		return entry, nil
	}

	valueLen, err := readUint32Full(r)
	if err != nil {
		return nil, err
	}
	entry.Value, err = ReadBytes(r, uint64(valueLen))
	if err != nil {
		return nil, truncated(err)
	}
	return entry, nil
}

func readUint32Full(r io.Reader) (uint32, error) {
	v, err := ReadUint32(r)
	if err != nil {
		return 0, truncated(err)
	}
	return v, nil
}

// truncated maps any read failure inside a record to ErrCorruption. By the
// time this is called the record header has been consumed, so an EOF here
// means the record body is shorter than declared.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated record", ErrCorruption)
	}
	return err
}

func WriteUint32(w io.Writer, v uint32) (int, error) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return w.Write(buf[:])
}

func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func WriteUint64(w io.Writer, v uint64) (int, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return w.Write(buf[:])
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func WriteBytes(w io.Writer, data []byte) (int, error) {
	return w.Write(data)
}

func ReadBytes(r io.Reader, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// CloneBytes returns a copy of src, preserving nil.
func CloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
