package hyperftp

import (
	"strconv"
	"strings"
	"time"
)

// DirectoryEntry is one parsed line of a remote directory listing.
type DirectoryEntry struct {
	// Name is the entry name, without any path prefix.
	Name string

	// IsDir reports whether the entry is a directory.
	IsDir bool

	// Size is the size in bytes, or -1 when the listing does not say.
	Size int64

	// ModTime is the modification time, or the zero value when unknown.
	ModTime time.Time

	// Perms is the permission string as listed (e.g. "drwxr-xr-x"), if any.
	Perms string

	// Target is the symlink target, empty otherwise.
	Target string

	// Raw is the unmodified listing line.
	Raw string
}

// ListingStyle selects the parser used for LIST output.
type ListingStyle int

const (
	// StyleAuto tries EPLF, DOS, and Unix formats per line.
	StyleAuto ListingStyle = iota

	// StyleUnix parses ls -l style lines only.
	StyleUnix

	// StyleDOS parses IIS/Windows style lines only.
	StyleDOS

	// StyleNameOnly treats every non-blank line as a bare name. Use it for
	// servers whose LIST output matches NLST.
	StyleNameOnly
)

// ListingParser parses one listing line. ok is false when the line does not
// match the parser's format.
type ListingParser interface {
	Parse(line string) (DirectoryEntry, bool)
}

func parserForStyle(style ListingStyle) ListingParser {
	switch style {
	case StyleUnix:
		return UnixParser{}
	case StyleDOS:
		return DOSParser{}
	case StyleNameOnly:
		return NameOnlyParser{}
	default:
		return compositeParser{EPLFParser{}, DOSParser{}, UnixParser{}}
	}
}

// parseListing runs every line through the parser and keeps the entries that
// parse. Malformed lines are skipped, not surfaced as errors; one odd line
// must not hide the rest of the directory.
func parseListing(lines []string, parser ListingParser) []DirectoryEntry {
	var entries []DirectoryEntry
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if entry, ok := parser.Parse(trimmed); ok {
			entry.Raw = line
			entries = append(entries, entry)
		}
	}
	return entries
}

// ParseListing parses raw LIST output with the given style. Malformed lines
// are skipped; entries come back in the server's order. The same raw text
// always parses to the same entries.
func ParseListing(raw string, style ListingStyle) []DirectoryEntry {
	return parseListing(strings.Split(raw, "\n"), parserForStyle(style))
}

// compositeParser tries each parser in order and takes the first match.
type compositeParser []ListingParser

func (p compositeParser) Parse(line string) (DirectoryEntry, bool) {
	for _, parser := range p {
		if entry, ok := parser.Parse(line); ok {
			return entry, true
		}
	}
	return DirectoryEntry{}, false
}

// UnixParser parses ls -l style lines:
//
//	drwxr-xr-x   2 owner group     4096 Jan 10 12:30 docs
//	-rw-r--r--   1 owner group      120 Mar  5  2023 notes.txt
//
// Both 9-field and 8-field (no group) layouts are accepted.
type UnixParser struct{}

func (UnixParser) Parse(line string) (DirectoryEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return DirectoryEntry{}, false
	}

	perms := fields[0]
	if len(perms) < 10 {
		return DirectoryEntry{}, false
	}
	switch perms[0] {
	case '-', 'd', 'l', 'b', 'c', 'p', 's':
	default:
		return DirectoryEntry{}, false
	}

	// 9-field: perms links owner group size month day time/year name...
	// 8-field: perms links owner size month day time/year name...
	var sizeIdx int
	if _, err := strconv.ParseInt(fields[4], 10, 64); err == nil && isMonth(fields[5]) {
		sizeIdx = 4
	} else if _, err := strconv.ParseInt(fields[3], 10, 64); err == nil && isMonth(fields[4]) {
		sizeIdx = 3
	} else {
		return DirectoryEntry{}, false
	}

	size, err := strconv.ParseInt(fields[sizeIdx], 10, 64)
	if err != nil {
		return DirectoryEntry{}, false
	}

	nameStart := sizeIdx + 4
	if len(fields) < nameStart+1 {
		return DirectoryEntry{}, false
	}

	entry := DirectoryEntry{
		IsDir: perms[0] == 'd',
		Size:  size,
		Perms: perms,
	}
	if entry.IsDir {
		entry.Size = -1
	}

	entry.ModTime = parseUnixTime(fields[sizeIdx+1], fields[sizeIdx+2], fields[sizeIdx+3])

	name := strings.Join(fields[nameStart:], " ")
	if perms[0] == 'l' {
		if target, after, ok := cutArrow(name); ok {
			name = target
			entry.Target = after
		}
	}
	if name == "" {
		return DirectoryEntry{}, false
	}
	entry.Name = name

	return entry, true
}

func cutArrow(name string) (before, after string, ok bool) {
	return strings.Cut(name, " -> ")
}

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

func isMonth(s string) bool {
	_, ok := months[s]
	return ok
}

// parseUnixTime resolves the "Month Day (HH:MM | Year)" triple. Listings
// within roughly the last six months carry a time instead of a year.
func parseUnixTime(monthStr, dayStr, timeOrYear string) time.Time {
	month, ok := months[monthStr]
	if !ok {
		return time.Time{}
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}
	}

	now := time.Now()

	if strings.Contains(timeOrYear, ":") {
		parts := strings.SplitN(timeOrYear, ":", 2)
		hour, err1 := strconv.Atoi(parts[0])
		minute, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return time.Time{}
		}
		t := time.Date(now.Year(), month, day, hour, minute, 0, 0, time.UTC)
		if t.After(now.AddDate(0, 0, 1)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t
	}

	year, err := strconv.Atoi(timeOrYear)
	if err != nil || year < 1970 {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DOSParser parses IIS/Windows style lines:
//
//	01-10-24  12:30PM       <DIR>          docs
//	03-05-23  09:15AM                 1024 notes.txt
type DOSParser struct{}

func (DOSParser) Parse(line string) (DirectoryEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return DirectoryEntry{}, false
	}

	modTime, ok := parseDOSTime(fields[0], fields[1])
	if !ok {
		return DirectoryEntry{}, false
	}

	entry := DirectoryEntry{ModTime: modTime, Size: -1}

	if fields[2] == "<DIR>" {
		entry.IsDir = true
	} else {
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return DirectoryEntry{}, false
		}
		entry.Size = size
	}

	entry.Name = strings.Join(fields[3:], " ")
	return entry, true
}

func parseDOSTime(dateStr, timeStr string) (time.Time, bool) {
	for _, layout := range []string{"01-02-06 03:04PM", "01-02-2006 03:04PM", "01-02-06 15:04", "01-02-2006 15:04"} {
		if t, err := time.Parse(layout, dateStr+" "+timeStr); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EPLFParser parses Easily Parsed LIST Format lines:
//
//	+i8388621.48594,m825718503,r,s280,\tdjb.html
type EPLFParser struct{}

func (EPLFParser) Parse(line string) (DirectoryEntry, bool) {
	if !strings.HasPrefix(line, "+") {
		return DirectoryEntry{}, false
	}

	rest := line[1:]
	idx := strings.IndexAny(rest, "\t ")
	if idx == -1 {
		return DirectoryEntry{}, false
	}

	facts := rest[:idx]
	name := strings.TrimSpace(rest[idx+1:])
	if name == "" {
		return DirectoryEntry{}, false
	}

	entry := DirectoryEntry{Name: name, Size: -1}
	for _, fact := range strings.Split(facts, ",") {
		switch {
		case fact == "/":
			entry.IsDir = true
		case strings.HasPrefix(fact, "s"):
			if size, err := strconv.ParseInt(fact[1:], 10, 64); err == nil {
				entry.Size = size
			}
		case strings.HasPrefix(fact, "m"):
			if secs, err := strconv.ParseInt(fact[1:], 10, 64); err == nil {
				entry.ModTime = time.Unix(secs, 0).UTC()
			}
		}
	}

	return entry, true
}

// NameOnlyParser accepts any non-blank line as a bare name. It never fails,
// so it is only selected explicitly, never as part of StyleAuto.
type NameOnlyParser struct{}

func (NameOnlyParser) Parse(line string) (DirectoryEntry, bool) {
	name := strings.TrimSpace(line)
	if name == "" {
		return DirectoryEntry{}, false
	}
	return DirectoryEntry{Name: name, Size: -1}, true
}

// parseMLSDLine parses one RFC 3659 MLSD fact line:
//
//	type=dir;modify=20240110123000;perm=el; docs
func parseMLSDLine(line string) (DirectoryEntry, bool) {
	facts, name, ok := strings.Cut(line, " ")
	if !ok || name == "" {
		return DirectoryEntry{}, false
	}

	entry := DirectoryEntry{Name: name, Size: -1}
	for _, fact := range strings.Split(facts, ";") {
		key, value, ok := strings.Cut(fact, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "type":
			t := strings.ToLower(value)
			if t == "dir" || t == "cdir" || t == "pdir" {
				entry.IsDir = true
			}
		case "size":
			if size, err := strconv.ParseInt(value, 10, 64); err == nil {
				entry.Size = size
			}
		case "modify":
			if t, err := time.Parse("20060102150405", value); err == nil {
				entry.ModTime = t
			}
		case "perm":
			entry.Perms = value
		}
	}

	// cdir/pdir entries describe the listed directory itself.
	if entry.Name == "." || entry.Name == ".." {
		return DirectoryEntry{}, false
	}

	return entry, true
}

// mlsdParser adapts parseMLSDLine to the ListingParser interface.
type mlsdParser struct{}

func (mlsdParser) Parse(line string) (DirectoryEntry, bool) {
	return parseMLSDLine(line)
}
