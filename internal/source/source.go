// Package source defines the repository content collaborator the scan engine
// reads from, plus a local-directory implementation for CLI use.
package source

import (
	"context"

	"securethread/internal/model"
)

// Provider hands the engine a file listing and file contents for one
// repository reference. Authentication and transport concerns stay behind
// this interface.
type Provider interface {
	ListFiles(ctx context.Context, repo string) ([]model.FileCandidate, error)
	// GetFileContent returns the file body and whether it looks binary.
	GetFileContent(ctx context.Context, repo string, path string) (content string, isBinary bool, err error)
}
