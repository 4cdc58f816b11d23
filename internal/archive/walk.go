package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
)

// ErrStop ends a Walk early without reporting an error.
var ErrStop = errors.New("archive: stop walk")

// Walk streams the regular files of a tar without holding the whole
// container in memory. keep selects members by name; only selected
// members are read. Oversized members are skipped.
func Walk(r io.Reader, maxMember int64, keep func(name string) bool, fn func(name string, data []byte) error) error {
	if maxMember <= 0 {
		maxMember = DefaultMaxMemberBytes
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := cleanName(hdr.Name)
		if !ok || !keep(name) || hdr.Size > maxMember {
			continue
		}
		data, err := readLimited(tr, hdr.Size)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(name, data); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}
