package hyperftp

import (
	"testing"
	"time"
)

func TestUnixParser(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		line   string
		want   DirectoryEntry
		wantOK bool
	}{
		{
			name: "file with year",
			line: "-rw-r--r--   1 alice staff      120 Mar  5  2023 notes.txt",
			want: DirectoryEntry{
				Name:    "notes.txt",
				Size:    120,
				Perms:   "-rw-r--r--",
				ModTime: time.Date(2023, time.March, 5, 0, 0, 0, 0, time.UTC),
			},
			wantOK: true,
		},
		{
			name: "directory",
			line: "drwxr-xr-x   2 alice staff     4096 Jan 10 12:30 docs",
			want: DirectoryEntry{
				Name:  "docs",
				IsDir: true,
				Size:  -1,
				Perms: "drwxr-xr-x",
			},
			wantOK: true,
		},
		{
			name: "name with spaces",
			line: "-rw-r--r--   1 alice staff       42 Jan 10 12:30 my report.pdf",
			want: DirectoryEntry{
				Name:  "my report.pdf",
				Size:  42,
				Perms: "-rw-r--r--",
			},
			wantOK: true,
		},
		{
			name: "symlink with target",
			line: "lrwxrwxrwx   1 alice staff        7 Jan 10 12:30 latest -> v2.1.0",
			want: DirectoryEntry{
				Name:   "latest",
				Target: "v2.1.0",
				Size:   7,
				Perms:  "lrwxrwxrwx",
			},
			wantOK: true,
		},
		{
			name: "no group column",
			line: "-rw-r--r--   1 alice      120 Mar  5  2023 notes.txt",
			want: DirectoryEntry{
				Name:    "notes.txt",
				Size:    120,
				Perms:   "-rw-r--r--",
				ModTime: time.Date(2023, time.March, 5, 0, 0, 0, 0, time.UTC),
			},
			wantOK: true,
		},
		{name: "garbage", line: "total 48", wantOK: false},
		{name: "dos line", line: "01-10-24  12:30PM       <DIR>          docs", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := UnixParser{}.Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok: expected %v, got %v", tt.wantOK, ok)
			}
			if !ok {
				return
			}
			if got.Name != tt.want.Name {
				t.Errorf("name: expected %q, got %q", tt.want.Name, got.Name)
			}
			if got.IsDir != tt.want.IsDir {
				t.Errorf("isdir: expected %v, got %v", tt.want.IsDir, got.IsDir)
			}
			if got.Size != tt.want.Size {
				t.Errorf("size: expected %d, got %d", tt.want.Size, got.Size)
			}
			if got.Perms != tt.want.Perms {
				t.Errorf("perms: expected %q, got %q", tt.want.Perms, got.Perms)
			}
			if got.Target != tt.want.Target {
				t.Errorf("target: expected %q, got %q", tt.want.Target, got.Target)
			}
			if !tt.want.ModTime.IsZero() && !got.ModTime.Equal(tt.want.ModTime) {
				t.Errorf("modtime: expected %v, got %v", tt.want.ModTime, got.ModTime)
			}
		})
	}
}

func TestDOSParser(t *testing.T) {
	t.Parallel()
	entry, ok := DOSParser{}.Parse("01-10-24  12:30PM       <DIR>          docs")
	if !ok {
		t.Fatal("expected DOS directory line to parse")
	}
	if !entry.IsDir || entry.Name != "docs" || entry.Size != -1 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	entry, ok = DOSParser{}.Parse("03-05-23  09:15AM                 1024 notes.txt")
	if !ok {
		t.Fatal("expected DOS file line to parse")
	}
	if entry.IsDir || entry.Name != "notes.txt" || entry.Size != 1024 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.ModTime.Year() != 2023 || entry.ModTime.Month() != time.March {
		t.Errorf("unexpected modtime: %v", entry.ModTime)
	}

	if _, ok := (DOSParser{}).Parse("drwxr-xr-x 2 a b 4096 Jan 10 12:30 docs"); ok {
		t.Errorf("unix line should not parse as DOS")
	}
}

func TestEPLFParser(t *testing.T) {
	t.Parallel()
	entry, ok := EPLFParser{}.Parse("+i8388621.48594,m825718503,r,s280,\tdjb.html")
	if !ok {
		t.Fatal("expected EPLF line to parse")
	}
	if entry.Name != "djb.html" || entry.Size != 280 || entry.IsDir {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.ModTime.Unix() != 825718503 {
		t.Errorf("unexpected modtime: %v", entry.ModTime)
	}

	entry, ok = EPLFParser{}.Parse("+/,m825718503,\tpub")
	if !ok {
		t.Fatal("expected EPLF dir line to parse")
	}
	if !entry.IsDir || entry.Name != "pub" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if _, ok := (EPLFParser{}).Parse("-rw-r--r-- 1 a b 1 Jan 1 2020 f"); ok {
		t.Errorf("non-EPLF line should not parse")
	}
}

func TestNameOnlyParser(t *testing.T) {
	t.Parallel()
	entry, ok := NameOnlyParser{}.Parse("report.pdf")
	if !ok || entry.Name != "report.pdf" || entry.Size != -1 {
		t.Errorf("unexpected result: %+v ok=%v", entry, ok)
	}

	if _, ok := (NameOnlyParser{}).Parse("   "); ok {
		t.Errorf("blank line should not parse")
	}
}

func TestParseListing_SkipsMalformed(t *testing.T) {
	t.Parallel()
	lines := []string{
		"total 48",
		"drwxr-xr-x   2 alice staff     4096 Jan 10 12:30 docs",
		"",
		"???garbage???",
		"-rw-r--r--   1 alice staff      120 Mar  5  2023 notes.txt",
	}

	entries := parseListing(lines, parserForStyle(StyleAuto))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "docs" || entries[1].Name != "notes.txt" {
		t.Errorf("unexpected entries: %+v", entries)
	}

	// Raw keeps the original line for callers that need it.
	if entries[0].Raw != lines[1] {
		t.Errorf("raw line not preserved: %q", entries[0].Raw)
	}
}

func TestParseListing_Restartable(t *testing.T) {
	t.Parallel()
	raw := "drwxr-xr-x   2 alice staff     4096 Jan 10 12:30 docs\r\n" +
		"junk line\r\n" +
		"-rw-r--r--   1 alice staff      120 Mar  5  2023 notes.txt\r\n"

	first := ParseListing(raw, StyleAuto)
	second := ParseListing(raw, StyleAuto)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 entries per parse, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name || first[i].Size != second[i].Size {
			t.Errorf("re-parse diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestParseMLSDLine(t *testing.T) {
	t.Parallel()
	entry, ok := parseMLSDLine("type=file;size=1024;modify=20240110123000; report.pdf")
	if !ok {
		t.Fatal("expected MLSD line to parse")
	}
	if entry.Name != "report.pdf" || entry.Size != 1024 || entry.IsDir {
		t.Errorf("unexpected entry: %+v", entry)
	}
	want := time.Date(2024, time.January, 10, 12, 30, 0, 0, time.UTC)
	if !entry.ModTime.Equal(want) {
		t.Errorf("expected modtime %v, got %v", want, entry.ModTime)
	}

	entry, ok = parseMLSDLine("type=dir;perm=el; docs")
	if !ok || !entry.IsDir || entry.Perms != "el" {
		t.Errorf("unexpected dir entry: %+v ok=%v", entry, ok)
	}

	// cdir/pdir entries describe the listed directory itself, not a child.
	if _, ok := parseMLSDLine("type=cdir; ."); ok {
		t.Errorf("cdir entry should be skipped")
	}
	if _, ok := parseMLSDLine("no-facts-here"); ok {
		t.Errorf("malformed line should not parse")
	}
}

func FuzzParseListing(f *testing.F) {
	f.Add("drwxr-xr-x   2 alice staff     4096 Jan 10 12:30 docs")
	f.Add("01-10-24  12:30PM       <DIR>          docs")
	f.Add("+/,m825718503,\tpub")
	f.Add("total 48")
	f.Add("")
	f.Add("\x00\xff garbage")

	parser := parserForStyle(StyleAuto)
	f.Fuzz(func(t *testing.T, line string) {
		// Must never panic; entries that do parse must carry a name.
		entries := parseListing([]string{line}, parser)
		for _, e := range entries {
			if e.Name == "" {
				t.Errorf("parsed entry with empty name from %q", line)
			}
		}
	})
}
