package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

// Extensions recognized as backup artifacts. The type comes from the file
// name alone (see Classify), so a .trn or .dif file without LOG or DIFF in
// its name is listed as Full.
var Extensions = []string{".bak", ".trn", ".dif"}

// Entry is one item of a directory listing.
type Entry struct {
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
	IsDir      bool
}

// Lister enumerates a directory.
type Lister interface {
	ListEntries(path string) ([]Entry, error)
}

// DirLister lists the local file system.
type DirLister struct{}

func (DirLister) ListEntries(path string) ([]Entry, error) {
	items, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		entries = append(entries, Entry{
			Name:       item.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
			IsDir:      item.IsDir(),
		})
	}
	return entries, nil
}

// Catalog is the in-memory index of one backup directory. Every Refresh
// replaces the previous record set.
type Catalog struct {
	mu      sync.RWMutex
	lister  Lister
	log     *logger.Logger
	dir     string
	records []Record
	summary Summary
}

func New(lister Lister, log *logger.Logger) *Catalog {
	if lister == nil {
		lister = DirLister{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Catalog{lister: lister, log: log}
}

// Refresh rescans dir and returns its records newest first. On failure the
// catalog is emptied and a KindCatalogAccess error is returned.
func (c *Catalog) Refresh(dir string) ([]Record, error) {
	entries, err := c.lister.ListEntries(dir)
	if err != nil {
		c.store(dir, nil)
		c.log.Warnf("Unable to read backup directory %s: %v", dir, err)
		return []Record{}, accessError(dir, err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir || !hasBackupExtension(entry.Name) {
			continue
		}
		records = append(records, ParseRecord(dir, entry))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ModifiedAt.After(records[j].ModifiedAt)
	})

	c.store(dir, records)
	c.log.Debugf("Catalog %s: %d backups", dir, len(records))
	return copyRecords(records), nil
}

func (c *Catalog) store(dir string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = dir
	c.records = records
	c.summary = Summarize(records)
}

// Records returns the result of the last refresh.
func (c *Catalog) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRecords(c.records)
}

func (c *Catalog) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summary
}

// Dir is the directory of the last refresh.
func (c *Catalog) Dir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// Filter applies Filter to the current record set.
func (c *Catalog) Filter(server, database, date string) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Filter(c.records, server, database, date)
}

func hasBackupExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range Extensions {
		if ext == known {
			return true
		}
	}
	return false
}

func accessError(dir string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &apperrors.Error{Kind: apperrors.KindCatalogAccess, Op: "refresh", Message: "directory not found: " + dir, Cause: err}
	case errors.Is(err, fs.ErrPermission):
		return &apperrors.Error{Kind: apperrors.KindCatalogAccess, Op: "refresh", Message: "access denied: " + dir, Cause: err}
	default:
		return apperrors.Wrap(apperrors.KindCatalogAccess, "refresh", err)
	}
}

func copyRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
