// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS         = (*zipFS)(nil)
	_ fs.StatFS     = (*zipFS)(nil)
	_ fs.ReadDirFS  = (*zipFS)(nil)
	_ fs.ReadFileFS = (*zipFS)(nil)
)

type zipFS struct {
	ctx     context.Context
	entries []*Entry
	byName  map[string]*Entry
}

// FS reads the central directory and returns a read-only file system view
// of the archive. Files are extracted with ctx when opened.
func (zr *ZipReader) FS(ctx context.Context) (fs.FS, error) {
	entries, err := zr.GetEntries(ctx)
	if err != nil {
		return nil, err
	}
	zfs := &zipFS{ctx: ctx, entries: entries, byName: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		zfs.byName[strings.TrimSuffix(e.Filename, "/")] = e
	}
	return zfs, nil
}

// Open implements fs.FS.
func (zfs *zipFS) Open(name string) (fs.File, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if entry.Directory {
		return &fsDir{entry: entry, fs: zfs}, nil
	}

	data, err := entry.Bytes(zfs.ctx)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{entry: entry, r: bytes.NewReader(data)}, nil
}

// ReadFile implements fs.ReadFileFS.
func (zfs *zipFS) ReadFile(name string) ([]byte, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	if entry.Directory {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	data, err := entry.Bytes(zfs.ctx)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// Stat implements fs.StatFS.
func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfoAdapter{entry}, nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entry, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !entry.Directory {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return (&fsDir{entry: entry, fs: zfs}).ReadDir(-1)
}

// lookup handles the root directory, explicit entries and directories
// implied by entry paths.
func (zfs *zipFS) lookup(name string) (*Entry, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return &Entry{Filename: ".", Directory: true, Mode: fs.ModeDir | 0o755}, nil
	}
	if e, ok := zfs.byName[name]; ok {
		return e, nil
	}

	prefix := name + "/"
	for _, e := range zfs.entries {
		if strings.HasPrefix(e.Filename, prefix) {
			return &Entry{Filename: prefix, Directory: true, Mode: fs.ModeDir | 0o755}, nil
		}
	}
	return nil, fs.ErrNotExist
}

type fsFile struct {
	entry *Entry
	r     *bytes.Reader
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfoAdapter{f.entry}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.r.Read(b) }
func (f *fsFile) Close() error               { return nil }

type fsDir struct {
	entry  *Entry
	fs     *zipFS
	listed []fs.DirEntry
	read   bool
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return fileInfoAdapter{d.entry}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.entry.Filename, Err: fs.ErrInvalid}
}

// ReadDir lists the direct children of the directory.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.read {
		d.listed = d.children()
		d.read = true
	}
	if n <= 0 {
		list := d.listed
		d.listed = nil
		return list, nil
	}
	if len(d.listed) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.listed))
	list := d.listed[:n]
	d.listed = d.listed[n:]
	return list, nil
}

func (d *fsDir) children() []fs.DirEntry {
	dirPath := d.entry.Filename
	if dirPath == "." {
		dirPath = ""
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry
	for _, e := range d.fs.entries {
		rel, ok := strings.CutPrefix(e.Filename, dirPath)
		if !ok || rel == "" {
			continue
		}
		child, rest, nested := strings.Cut(rel, "/")
		if seen[child] {
			continue
		}
		seen[child] = true

		info := fileInfoAdapter{e}
		if nested && rest != "" {
			if dir, err := d.fs.lookup(dirPath + child); err == nil {
				info = fileInfoAdapter{dir}
			}
		}
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

type fileInfoAdapter struct{ e *Entry }

func (i fileInfoAdapter) Name() string {
	if i.e.Filename == "." {
		return "."
	}
	return path.Base(strings.TrimSuffix(i.e.Filename, "/"))
}
func (i fileInfoAdapter) Size() int64        { return int64(i.e.UncompressedSize) }
func (i fileInfoAdapter) ModTime() time.Time { return i.e.LastModDate }
func (i fileInfoAdapter) IsDir() bool        { return i.e.Directory }
func (i fileInfoAdapter) Sys() any           { return i.e }
func (i fileInfoAdapter) Mode() fs.FileMode {
	if i.e.Directory {
		return i.e.Mode | fs.ModeDir
	}
	return i.e.Mode
}
