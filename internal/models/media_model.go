package models

import (
	"fmt"
	"strings"
)

type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindUnknown MediaKind = ""
)

// MediaAsset is a file on local disk owned by exactly one holder at a time.
type MediaAsset struct {
	Path         string
	MimeType     string
	SizeBytes    int64
	OriginalName string
}

func (m *MediaAsset) Kind() MediaKind {
	switch {
	case strings.HasPrefix(m.MimeType, "image/"):
		return MediaKindImage
	case strings.HasPrefix(m.MimeType, "video/"):
		return MediaKindVideo
	}
	return MediaKindUnknown
}

// MediaHandle references media already accepted by a platform.
type MediaHandle struct {
	Platform Platform
	ID       string
	Kind     MediaKind
}

type UploadState string

const (
	UploadStateInit       UploadState = "INIT"
	UploadStateAppending  UploadState = "APPENDING"
	UploadStateFinalizing UploadState = "FINALIZE"
	UploadStateProcessing UploadState = "PROCESSING"
	UploadStateReady      UploadState = "READY"
	UploadStateFailed     UploadState = "FAILED"
)

var uploadTransitions = map[UploadState][]UploadState{
	UploadStateInit:       {UploadStateAppending, UploadStateFailed},
	UploadStateAppending:  {UploadStateFinalizing, UploadStateFailed},
	UploadStateFinalizing: {UploadStateProcessing, UploadStateReady, UploadStateFailed},
	UploadStateProcessing: {UploadStateReady, UploadStateFailed},
}

// UploadSession tracks one chunked upload. Segments are numbered from 0.
type UploadSession struct {
	MediaID      string
	TotalBytes   int64
	ChunkSize    int64
	SegmentCount int
	State        UploadState
}

func NewUploadSession(totalBytes, chunkSize int64) *UploadSession {
	segments := int((totalBytes + chunkSize - 1) / chunkSize)
	if segments == 0 {
		segments = 1
	}
	return &UploadSession{
		TotalBytes:   totalBytes,
		ChunkSize:    chunkSize,
		SegmentCount: segments,
		State:        UploadStateInit,
	}
}

// Segment returns the byte range of segment i.
func (s *UploadSession) Segment(i int) (offset, length int64) {
	offset = int64(i) * s.ChunkSize
	length = s.ChunkSize
	if offset+length > s.TotalBytes {
		length = s.TotalBytes - offset
	}
	return offset, length
}

func (s *UploadSession) Advance(next UploadState) error {
	for _, allowed := range uploadTransitions[s.State] {
		if allowed == next {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("upload session %s: invalid transition %s -> %s", s.MediaID, s.State, next)
}
