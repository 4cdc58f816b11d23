// Package archive reads paper and shard containers (tar, tar.gz, zip and
// single gzipped sources) fully into memory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrUnsupported = errors.New("archive: unsupported container format")
	ErrTooLarge    = errors.New("archive: member exceeds size limit")
)

// DefaultMaxMemberBytes caps a single member when no limit is given.
const DefaultMaxMemberBytes = 256 << 20

// Member is one regular file inside an archive.
type Member struct {
	Name string
	Size int64
	data []byte
}

// Read returns a copy of the member's payload.
func (m Member) Read() ([]byte, error) {
	if m.data == nil && m.Size > 0 {
		return nil, fmt.Errorf("archive: member %s has no payload", m.Name)
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// Archive is an in-memory, ordered listing of members.
type Archive struct {
	members []Member
	byName  map[string]int
}

// Options tune how archives are opened.
type Options struct {
	MaxMemberBytes int64
	// SingleFileName names the lone member of a gzip stream that is not a tar.
	SingleFileName string
}

func (o Options) withDefaults() Options {
	if o.MaxMemberBytes <= 0 {
		o.MaxMemberBytes = DefaultMaxMemberBytes
	}
	if o.SingleFileName == "" {
		o.SingleFileName = "main.tex"
	}
	return o
}

// Open detects the container format from magic bytes and lists it.
func Open(data []byte) (*Archive, error) { return OpenWith(data, Options{}) }

// OpenWith is Open with explicit options.
func OpenWith(data []byte, opts Options) (*Archive, error) {
	opts = opts.withDefaults()
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return openGzip(data, opts)
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04}):
		return openZip(data, opts)
	case isTar(data):
		return openTar(bytes.NewReader(data), opts)
	default:
		return nil, ErrUnsupported
	}
}

// isTar checks for the ustar magic at offset 257.
func isTar(data []byte) bool {
	return len(data) >= 262 && string(data[257:262]) == "ustar"
}

func openGzip(data []byte, opts Options) (*Archive, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	raw, err := readLimited(zr, opts.MaxMemberBytes*4)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	if isTar(raw) {
		return openTar(bytes.NewReader(raw), opts)
	}
	// arXiv ships single-file submissions as a bare gzipped source.
	name := opts.SingleFileName
	if zr.Name != "" {
		if n, ok := cleanName(zr.Name); ok {
			name = n
		}
	}
	a := newArchive()
	a.add(Member{Name: name, Size: int64(len(raw)), data: raw})
	return a, nil
}

func openTar(r io.Reader, opts Options) (*Archive, error) {
	tr := tar.NewReader(r)
	a := newArchive()
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(a.members) == 0 {
				return nil, fmt.Errorf("read tar entry: %w", err)
			}
			// keep what was listed before the corruption
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := cleanName(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Size > opts.MaxMemberBytes {
			continue
		}
		payload, err := readLimited(tr, hdr.Size)
		if err != nil {
			continue
		}
		a.add(Member{Name: name, Size: hdr.Size, data: payload})
	}
	return a, nil
}

func openZip(data []byte, opts Options) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zip reader: %w", err)
	}
	a := newArchive()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := cleanName(f.Name)
		if !ok {
			continue
		}
		if int64(f.UncompressedSize64) > opts.MaxMemberBytes {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		payload, err := readLimited(rc, int64(f.UncompressedSize64))
		rc.Close()
		if err != nil {
			continue
		}
		a.add(Member{Name: name, Size: int64(len(payload)), data: payload})
	}
	return a, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// cleanName strips leading "./" and rejects names escaping the archive root.
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	name = path.Clean(name)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", false
	}
	return name, true
}

func newArchive() *Archive {
	return &Archive{byName: make(map[string]int)}
}

func (a *Archive) add(m Member) {
	if i, ok := a.byName[m.Name]; ok {
		// later entries win, as with tar extraction
		a.members[i] = m
		return
	}
	a.byName[m.Name] = len(a.members)
	a.members = append(a.members, m)
}

// Members lists regular files in archive order.
func (a *Archive) Members() []Member { return a.members }

// Names lists member names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.members))
	for i, m := range a.members {
		names[i] = m.Name
	}
	return names
}

// Lookup finds a member by its cleaned name.
func (a *Archive) Lookup(name string) (Member, bool) {
	i, ok := a.byName[name]
	if !ok {
		return Member{}, false
	}
	return a.members[i], true
}

// Len returns the number of members.
func (a *Archive) Len() int { return len(a.members) }
