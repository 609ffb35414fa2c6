// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
)

// FakeFile is one entry of a FakeFS. A non-nil Err is returned for every
// access to the path.
type FakeFile struct {
	Content []byte
	Mode    os.FileMode
	UID     uint32
	GID     uint32
	Err     error
}

// FakeFS is an in-memory remote file system. Stat reports ownership through
// *sftp.FileStat like the SFTP client does.
type FakeFS struct {
	Files  map[string]FakeFile
	Reads  []string
	Closed bool
}

// NewFakeFS returns an empty file system.
func NewFakeFS() *FakeFS {
	return &FakeFS{Files: map[string]FakeFile{}}
}

// WriteFile adds a regular file.
func (f *FakeFS) WriteFile(p, content string, mode os.FileMode) {
	f.Files[p] = FakeFile{Content: []byte(content), Mode: mode}
}

// Mkdir adds a directory with the given owner.
func (f *FakeFS) Mkdir(p string, perm os.FileMode, uid, gid uint32) {
	f.Files[p] = FakeFile{Mode: os.ModeDir | perm, UID: uid, GID: gid}
}

func (f *FakeFS) lookup(p string) (FakeFile, error) {
	file, ok := f.Files[p]
	if !ok {
		return FakeFile{}, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	if file.Err != nil {
		return FakeFile{}, file.Err
	}
	return file, nil
}

// Stat implements audit.FileSystem.
func (f *FakeFS) Stat(p string) (os.FileInfo, error) {
	file, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	return fakeInfo{name: path.Base(p), file: file}, nil
}

// ReadFile implements audit.FileSystem.
func (f *FakeFS) ReadFile(p string) ([]byte, error) {
	f.Reads = append(f.Reads, p)
	file, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), file.Content...), nil
}

// ReadDir implements audit.FileSystem. Entries are the files and
// directories whose parent is p.
func (f *FakeFS) ReadDir(p string) ([]os.FileInfo, error) {
	p = path.Clean(p)
	var entries []os.FileInfo
	for name, file := range f.Files {
		if path.Dir(name) == p && name != p {
			entries = append(entries, fakeInfo{name: path.Base(name), file: file})
		}
	}
	if dir, ok := f.Files[p]; ok && dir.Err != nil {
		return nil, dir.Err
	}
	if len(entries) == 0 {
		if _, ok := f.Files[p]; !ok {
			return nil, &os.PathError{Op: "readdir", Path: p, Err: os.ErrNotExist}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Close marks the file system closed.
func (f *FakeFS) Close() error {
	f.Closed = true
	return nil
}

type fakeInfo struct {
	name string
	file FakeFile
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return int64(len(i.file.Content)) }
func (i fakeInfo) Mode() os.FileMode  { return i.file.Mode }
func (i fakeInfo) ModTime() time.Time { return time.Time{} }
func (i fakeInfo) IsDir() bool        { return i.file.Mode.IsDir() }
func (i fakeInfo) Sys() any {
	return &sftp.FileStat{
		Size: uint64(len(i.file.Content)),
		Mode: uint32(i.file.Mode.Perm()),
		UID:  i.file.UID,
		GID:  i.file.GID,
	}
}
