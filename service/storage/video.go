package storage

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
)

const videoCodec = "mp4v"

// VideoSink encodes frames into a temp file and only renames it into
// place on Commit. Abort drops whatever was not committed.
type VideoSink struct {
	storage IService
	writer  *gocv.VideoWriter
	temp    string
	final   string
	width   int
	height  int
}

func NewVideoSink(svc IService) *VideoSink {
	return &VideoSink{storage: svc}
}

func (s *VideoSink) Open(final string, fps float64, width, height int) error {
	temp, err := s.storage.TempPath(final)
	if err != nil {
		return err
	}
	writer, err := gocv.VideoWriterFile(temp, videoCodec, fps, width, height, true)
	if err != nil || !writer.IsOpened() {
		if writer != nil {
			writer.Close()
		}
		_ = os.Remove(temp)
		return &model.PersistenceError{Path: final, Err: fmt.Errorf("cannot open video writer: %v", err)}
	}

	s.writer, s.temp, s.final = writer, temp, final
	s.width, s.height = width, height
	return nil
}

// Path is the final location of the video.
func (s *VideoSink) Path() string {
	return s.final
}

func (s *VideoSink) Opened() bool {
	return s.writer != nil
}

// Write rejects frames whose size differs from the one given to Open.
func (s *VideoSink) Write(frame gocv.Mat) error {
	if s.writer == nil {
		return &model.PersistenceError{Path: s.final, Err: fmt.Errorf("video writer is not open")}
	}
	if frame.Cols() != s.width || frame.Rows() != s.height {
		return &model.PersistenceError{Path: s.final, Err: fmt.Errorf("frame is %dx%d, writer expects %dx%d", frame.Cols(), frame.Rows(), s.width, s.height)}
	}
	if err := s.writer.Write(frame); err != nil {
		return &model.PersistenceError{Path: s.final, Err: err}
	}
	return nil
}

func (s *VideoSink) Commit() (string, error) {
	if s.writer == nil {
		return "", &model.PersistenceError{Path: s.final, Err: fmt.Errorf("video writer is not open")}
	}
	if err := s.writer.Close(); err != nil {
		s.writer = nil
		return "", &model.PersistenceError{Path: s.final, Err: err}
	}
	s.writer = nil

	path, err := s.storage.StoreFile(s.temp, s.final)
	s.temp = ""
	return path, err
}

func (s *VideoSink) Abort() {
	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
	}
	if s.temp != "" {
		_ = os.Remove(s.temp)
		s.temp = ""
	}
}
