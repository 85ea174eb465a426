package domain

import (
	"context"
	"io"
)

// StorageService stores uploaded binaries and returns an addressable URL.
type StorageService interface {
	Upload(ctx context.Context, path string, contentType string, file io.Reader) (string, error)
}
