// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// store owns the backing file and the memory-mapped metadata window. One
// store per device, exclusively owned; all mutation goes through the device
// command loop so no locking happens here.
type store struct {
	file *os.File
	meta []byte
}

const pageSize = 4096

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// openOrCreate opens the backing file, creating it when absent. Reports
// whether the file already existed so the caller knows to try validation
// before formatting.
func openOrCreate(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err == nil {
		return f, true, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("create %s: %w", path, err)
	}
	return f, false, nil
}

func (s *store) truncate(size uint64) error {
	if err := s.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", s.file.Name(), size, err)
	}
	return nil
}

func (s *store) size() (uint64, error) {
	st, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(st.Size()), nil
}

// mapMeta maps the metadata region at offset 0. size must be page aligned.
func (s *store) mapMeta(size uint64) error {
	if s.meta != nil {
		s.unmap()
	}
	m, err := unix.Mmap(int(s.file.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s metadata (%d bytes): %w", s.file.Name(), size, err)
	}
	s.meta = m
	return nil
}

func (s *store) unmap() {
	if s.meta == nil {
		return
	}
	_ = unix.Munmap(s.meta)
	s.meta = nil
}

// flush syncs the metadata window to the file and drops cached pages so a
// reopen observes the persisted bytes.
func (s *store) flush() error {
	if s.meta == nil {
		return nil
	}
	if err := unix.Msync(s.meta, unix.MS_SYNC|unix.MS_INVALIDATE); err != nil {
		return fmt.Errorf("msync %s: %w", s.file.Name(), err)
	}
	return nil
}

func (s *store) preadAt(off uint64, buf []byte) error {
	n, err := s.file.ReadAt(buf, int64(off))
	if err != nil {
		return fmt.Errorf("pread %s at %d: %w", s.file.Name(), off, err)
	}
	if n != len(buf) {
		return fmt.Errorf("pread %s at %d: short read %d of %d", s.file.Name(), off, n, len(buf))
	}
	return nil
}

func (s *store) pwriteAt(off uint64, buf []byte) error {
	n, err := s.file.WriteAt(buf, int64(off))
	if err != nil {
		return fmt.Errorf("pwrite %s at %d: %w", s.file.Name(), off, err)
	}
	if n != len(buf) {
		return fmt.Errorf("pwrite %s at %d: short write %d of %d", s.file.Name(), off, n, len(buf))
	}
	return nil
}

// preadv fills the iovec from the file. Partial fills are errors; the read
// path never issues reads past EOF. The iovec is copied so retries after a
// short transfer never touch the caller's slices.
func (s *store) preadv(off uint64, iov [][]byte) error {
	iov = append([][]byte(nil), iov...)
	for len(iov) > 0 {
		n, err := unix.Preadv(int(s.file.Fd()), iov, int64(off))
		if err != nil {
			return fmt.Errorf("preadv %s at %d: %w", s.file.Name(), off, err)
		}
		if n == 0 {
			return fmt.Errorf("preadv %s at %d: unexpected EOF", s.file.Name(), off)
		}
		off += uint64(n)
		iov = advanceIov(iov, n)
	}
	return nil
}

func (s *store) pwritev(off uint64, iov [][]byte) error {
	iov = append([][]byte(nil), iov...)
	for len(iov) > 0 {
		n, err := unix.Pwritev(int(s.file.Fd()), iov, int64(off))
		if err != nil {
			return fmt.Errorf("pwritev %s at %d: %w", s.file.Name(), off, err)
		}
		if n == 0 {
			return fmt.Errorf("pwritev %s at %d: short write", s.file.Name(), off)
		}
		off += uint64(n)
		iov = advanceIov(iov, n)
	}
	return nil
}

// advanceIov drops n consumed bytes off the front of the iovec.
func advanceIov(iov [][]byte, n int) [][]byte {
	for n > 0 && len(iov) > 0 {
		if n >= len(iov[0]) {
			n -= len(iov[0])
			iov = iov[1:]
			continue
		}
		iov[0] = iov[0][n:]
		n = 0
	}
	for len(iov) > 0 && len(iov[0]) == 0 {
		iov = iov[1:]
	}
	return iov
}

func (s *store) fsync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", s.file.Name(), err)
	}
	return nil
}

func (s *store) close() error {
	s.unmap()
	return s.file.Close()
}
