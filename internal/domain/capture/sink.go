package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink persists PCM frames. Close must flush everything to stable storage.
type Sink interface {
	Write(frame []byte) error
	Close() error
}

// SinkFactory creates the sink for a session's raw file.
type SinkFactory func(path string, format Format) (Sink, error)

// WAVSink streams S16LE frames into a RIFF/WAVE file.
type WAVSink struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	format  *audio.Format
	closed  bool
}

// NewWAVSink creates path and writes frames as 16-bit PCM.
func NewWAVSink(path string, format Format) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw file: %w", err)
	}
	return &WAVSink{
		file:    f,
		encoder: wav.NewEncoder(f, format.SampleRate, 16, format.Channels, 1),
		format:  &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
	}, nil
}

func (s *WAVSink) Write(frame []byte) error {
	if len(frame) < 2 {
		return nil
	}
	samples := make([]int, len(frame)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(frame[i*2:])))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	buf := &audio.IntBuffer{Format: s.format, Data: samples, SourceBitDepth: 16}
	if err := s.encoder.Write(buf); err != nil {
		return fmt.Errorf("encoder write: %w", err)
	}
	return nil
}

// Close finalizes the header, syncs and closes the file.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	encErr := s.encoder.Close()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	switch {
	case encErr != nil:
		return fmt.Errorf("encoder close: %w", encErr)
	case syncErr != nil:
		return fmt.Errorf("sync raw file: %w", syncErr)
	case closeErr != nil:
		return fmt.Errorf("close raw file: %w", closeErr)
	}
	return nil
}
