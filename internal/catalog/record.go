package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	unknownField = "Unknown"
	// DisplayDateLayout is the date shown and filtered on.
	DisplayDateLayout = "02.01.2006"
)

// BackupType is derived from the file name. The zero value is Unknown.
type BackupType int

const (
	Unknown BackupType = iota
	Full
	Differential
	Log
	Scheduled
)

func (t BackupType) String() string {
	switch t {
	case Full:
		return "Full"
	case Differential:
		return "Differential"
	case Log:
		return "Log"
	case Scheduled:
		return "Scheduled"
	default:
		return "Unknown"
	}
}

// Record describes one backup artifact found on disk.
type Record struct {
	FileName     string
	ServerName   string
	DatabaseName string
	SizeBytes    int64
	ModifiedAt   time.Time
	// Date is the display date, from the name when it carries one and from
	// ModifiedAt otherwise.
	Date     string
	Type     BackupType
	FullPath string
}

// ParseRecord builds a Record from a directory entry. Names follow
// <server>_<database>_<YYYYMMDD>_<HHMMSS>[...].<ext>; missing parts become
// "Unknown".
func ParseRecord(dir string, entry Entry) Record {
	stem := strings.TrimSuffix(entry.Name, filepath.Ext(entry.Name))
	parts := strings.Split(stem, "_")

	record := Record{
		FileName:     entry.Name,
		ServerName:   unknownField,
		DatabaseName: unknownField,
		SizeBytes:    entry.SizeBytes,
		ModifiedAt:   entry.ModifiedAt,
		Type:         Classify(entry.Name),
		FullPath:     filepath.Join(dir, entry.Name),
	}
	if len(parts) > 0 && parts[0] != "" {
		record.ServerName = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		record.DatabaseName = parts[1]
	}

	record.Date = entry.ModifiedAt.Format(DisplayDateLayout)
	if len(parts) > 2 {
		if day, ok := parseDateToken(parts[2]); ok {
			record.Date = day.Format(DisplayDateLayout)
		}
	}
	return record
}

func parseDateToken(token string) (time.Time, bool) {
	if len(token) != 8 {
		return time.Time{}, false
	}
	day, err := time.Parse("20060102", token)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Classify maps a file name to its BackupType. The first match wins:
// DIFF, LOG, SCHEDULED, then Full. The extension is ignored.
func Classify(fileName string) BackupType {
	upper := strings.ToUpper(fileName)
	switch {
	case strings.Contains(upper, "DIFF"):
		return Differential
	case strings.Contains(upper, "LOG"):
		return Log
	case strings.Contains(upper, "SCHEDULED"):
		return Scheduled
	default:
		return Full
	}
}

// Filter keeps records whose server, database and display date contain the
// given substrings, ignoring case. An empty filter matches everything.
func Filter(records []Record, server, database, date string) []Record {
	server = strings.ToLower(server)
	database = strings.ToLower(database)
	date = strings.ToLower(date)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !strings.Contains(strings.ToLower(r.ServerName), server) ||
			!strings.Contains(strings.ToLower(r.DatabaseName), database) ||
			!strings.Contains(strings.ToLower(r.Date), date) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Summary aggregates a record set.
type Summary struct {
	Count      int
	TotalBytes int64
}

func Summarize(records []Record) Summary {
	s := Summary{Count: len(records)}
	for _, r := range records {
		s.TotalBytes += r.SizeBytes
	}
	return s
}

// HumanSize renders a byte count with binary units.
func HumanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return formatSize(float64(bytes), "B")
	}
	value := float64(bytes)
	for _, suffix := range []string{"KB", "MB", "GB", "TB"} {
		value /= unit
		if value < unit || suffix == "TB" {
			return formatSize(value, suffix)
		}
	}
	return formatSize(value, "TB")
}

func formatSize(value float64, suffix string) string {
	if suffix == "B" {
		return fmt.Sprintf("%.0f %s", value, suffix)
	}
	return fmt.Sprintf("%.2f %s", value, suffix)
}
