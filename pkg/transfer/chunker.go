package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Chunker reads a file as a sequence of chunkSize slices; only the last one may be shorter.
type Chunker struct {
	file      *os.File
	chunkSize int
	bytesRead int64
	buffer    []byte
}

func NewChunker(path string, chunkSize int) (*Chunker, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, ErrIsDir
	}
	return &Chunker{
		file:      file,
		chunkSize: chunkSize,
		buffer:    make([]byte, chunkSize),
	}, nil
}

// Next returns the next chunk or io.EOF. The returned slice is never reused.
func (c *Chunker) Next() ([]byte, error) {
	n, err := io.ReadFull(c.file, c.buffer)
	if n > 0 {
		c.bytesRead += int64(n)
		data := make([]byte, n)
		copy(data, c.buffer[:n])
		return data, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	return nil, err
}

func (c *Chunker) BytesRead() int64 {
	return c.bytesRead
}

func (c *Chunker) Close() error {
	return c.file.Close()
}
