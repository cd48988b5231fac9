package model

import (
	"os"
	"path/filepath"
	"strings"
)

type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaImage
	MediaVideo
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tiff": true, ".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wmv": true, ".flv": true, ".webm": true,
}

// KindOf classifies a path by its extension, case-insensitively.
func KindOf(path string) MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return MediaImage
	case videoExtensions[ext]:
		return MediaVideo
	}
	return MediaUnknown
}

// CheckInput fails with InputNotFoundError unless path is an existing regular file.
func CheckInput(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return &InputNotFoundError{Path: path}
	}
	return nil
}

// CheckModelName rejects names that can never resolve to a backend.
func CheckModelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidArgumentError{Argument: "model_name", Value: name, Reason: "must be a non-empty string"}
	}
	return nil
}
