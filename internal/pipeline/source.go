package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/spreadsheet"
)

// ErrNoArtifact is returned when no destination holds a readable artifact.
var ErrNoArtifact = errors.New("pipeline: artifact not found in any destination")

// ObjectGetter downloads an artifact from a remote destination.
type ObjectGetter interface {
	Get(ctx context.Context, dest, name string) ([]byte, error)
}

// ArtifactSource reads persisted artifacts back, trying the destinations in
// configuration order.
type ArtifactSource struct {
	destinations []string
	remote       ObjectGetter
	isRemote     func(dest string) bool
}

// NewArtifactSource creates a source. remote may be nil when every
// destination is a local folder.
func NewArtifactSource(destinations []string, remote ObjectGetter, isRemote func(string) bool) *ArtifactSource {
	if isRemote == nil {
		isRemote = func(string) bool { return false }
	}
	return &ArtifactSource{destinations: destinations, remote: remote, isRemote: isRemote}
}

// Read loads filename as a table named name from the first destination
// that has it.
func (s *ArtifactSource) Read(ctx context.Context, name, filename string) (*domain.Table, error) {
	var errs []error
	for _, dest := range s.destinations {
		if s.isRemote(dest) {
			if s.remote == nil {
				continue
			}
			data, err := s.remote.Get(ctx, dest, filename)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			return spreadsheet.ReadBytes(name, data)
		}

		path := filepath.Join(dest, filename)
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, err)
			continue
		}
		return spreadsheet.ReadFile(name, path)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrNoArtifact, filename, errors.Join(errs...))
}
