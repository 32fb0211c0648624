// Package bootstrap resolves the process archive configuration into the
// packed archive status and owns the mapped archive regions.
package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/chazu/cds/archive"
	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/config"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cds.bootstrap")

var ErrBuildMismatch = errors.New("archive was dumped by a different build")

// Bootstrap implements archive.Bootstrap over mapped archive files.
type Bootstrap struct {
	cfg   *config.Config
	build image.Build

	mu     sync.RWMutex
	ready  bool
	status archive.Status
	base   *image.Archive
	top    *image.Archive
}

var _ archive.Bootstrap = (*Bootstrap)(nil)

// Open resolves cfg into a status, mapping archives as needed. A base
// archive that cannot be used disables use mode, unless archive.require is
// set, in which case Open fails.
func Open(cfg *config.Config, build image.Build) (*Bootstrap, error) {
	b := &Bootstrap{cfg: cfg, build: build}

	var st archive.Status
	if cfg.Log.LambdaFormInvokers {
		st |= archive.FlagLoggingLambdaFormInvokers
	}

	switch cfg.Archive.Mode {
	case config.ModeOff:
	case config.ModeDumpStatic:
		st |= archive.FlagDumpingArchive | archive.FlagDumpingStaticArchive
	case config.ModeUse, config.ModeAuto:
		using, err := b.mapArchives(cfg.Archive.Mode == config.ModeAuto)
		if err != nil {
			if cfg.Archive.Require {
				return nil, err
			}
			log.Warningf("archive disabled: %v", err)
		}
		if using {
			st |= archive.FlagUsingArchive
		}
	case config.ModeDumpDynamic:
		using, err := b.mapBase(false)
		if err != nil {
			return nil, fmt.Errorf("dynamic dump needs a base archive: %w", err)
		}
		if using {
			st |= archive.FlagUsingArchive
		}
		st |= archive.FlagDumpingArchive
	default:
		return nil, fmt.Errorf("unknown archive mode %q", cfg.Archive.Mode)
	}

	if err := st.Validate(); err != nil {
		b.Close()
		return nil, err
	}

	b.mu.Lock()
	b.status = st
	b.ready = true
	b.mu.Unlock()
	log.Infof("archive status %s (mode %s)", st, cfg.Archive.Mode)
	return b, nil
}

// mapArchives maps the base archive and, when configured, the top layer.
// With optional set, a missing base file is not an error.
func (b *Bootstrap) mapArchives(optional bool) (bool, error) {
	using, err := b.mapBase(optional)
	if err != nil || !using {
		return false, err
	}
	top := b.cfg.TopPath()
	if top == "" {
		return true, nil
	}
	if _, err := os.Stat(top); errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	a, err := image.Open(top)
	if err == nil && a.Kind() != image.KindDynamic {
		a.Close()
		err = fmt.Errorf("%s is a %s archive, want dynamic", top, a.Kind())
	}
	if err == nil && a.Header().BaseChecksum != b.base.Identity() {
		a.Close()
		err = fmt.Errorf("%w: %s", image.ErrBaseMismatch, top)
	}
	if err != nil {
		if b.cfg.Archive.Require {
			b.Close()
			return false, err
		}
		log.Warningf("ignoring dynamic archive: %v", err)
		return true, nil
	}
	b.top = a
	return true, nil
}

func (b *Bootstrap) mapBase(optional bool) (bool, error) {
	path := b.cfg.ArchivePath()
	if optional {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log.Debugf("no archive at %s", path)
			return false, nil
		}
	}
	a, err := image.Open(path)
	if err != nil {
		return false, err
	}
	if a.Kind() != image.KindStatic {
		a.Close()
		return false, fmt.Errorf("%s is a %s archive, want static", path, a.Kind())
	}
	if a.Build() != b.build {
		a.Close()
		return false, fmt.Errorf("%w: archive %s, running %s", ErrBuildMismatch, a.Build(), b.build)
	}
	b.base = a
	return true, nil
}

// Status implements archive.Bootstrap.
func (b *Bootstrap) Status() (archive.Status, error) {
	if b == nil {
		return 0, archive.ErrNotBootstrapped
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return 0, archive.ErrNotBootstrapped
	}
	return b.status, nil
}

// Subgraph implements archive.Bootstrap. Heap subgraphs live only in the
// base archive.
func (b *Bootstrap) Subgraph(class string) (*image.Subgraph, error) {
	b.mu.RLock()
	base := b.base
	b.mu.RUnlock()
	if base == nil {
		return nil, fmt.Errorf("%w: %s (no archive mapped)", image.ErrNoSubgraph, class)
	}
	return base.Subgraph(class)
}

// Modules implements archive.Bootstrap.
func (b *Bootstrap) Modules() []image.ModuleRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.base == nil {
		return nil
	}
	return b.base.Modules()
}

// Build implements archive.Bootstrap.
func (b *Bootstrap) Build() image.Build {
	return b.build
}

// Base returns the mapped base archive, or nil.
func (b *Bootstrap) Base() *image.Archive {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// Top returns the mapped dynamic archive, or nil.
func (b *Bootstrap) Top() *image.Archive {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.top
}

// Close unmaps all archives. The status stays readable.
func (b *Bootstrap) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if b.top != nil {
		errs = append(errs, b.top.Close())
		b.top = nil
	}
	if b.base != nil {
		errs = append(errs, b.base.Close())
		b.base = nil
	}
	return errors.Join(errs...)
}
