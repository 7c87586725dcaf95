package kernel

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const inodeCacheSize = 4000

// inodeCache hands out small stable inode numbers for host paths. When
// full, the oldest mapping is forgotten and its path gets a new number on
// next use.
type inodeCache struct {
	mu    sync.Mutex
	max   int
	next  uint32
	inos  map[string]uint32
	order []string
}

func newInodeCache(max int) *inodeCache {
	return &inodeCache{
		max:  max,
		next: 2,
		inos: make(map[string]uint32),
	}
}

func (c *inodeCache) get(host string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ino, ok := c.inos[host]; ok {
		return ino
	}
	if len(c.order) >= c.max {
		delete(c.inos, c.order[0])
		c.order = c.order[1:]
	}
	ino := c.next
	c.next++
	if c.next == 0 {
		c.next = 2
	}
	c.inos[host] = ino
	c.order = append(c.order, host)
	return ino
}

type dirent struct {
	name string
	ino  uint32
}

// dirFile is an open directory. getdents yields kernel-entries records;
// read yields the packed byte stream.
type dirFile struct {
	mu     sync.Mutex
	ino    uint32
	ents   []dirent
	pos    int
	packed []byte
	off    int
}

func (k *Kernel) openHostDir(host string) (*dirFile, syscallabi.Errno) {
	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, syscallabi.FromHost(err)
	}
	ino := k.inodes.get(host)
	parent := k.root
	if host != k.root {
		parent = filepath.Dir(host)
	}
	ents := []dirent{
		{name: ".", ino: ino},
		{name: "..", ino: k.inodes.get(parent)},
	}
	for _, e := range entries {
		ents = append(ents, dirent{name: e.Name(), ino: k.inodes.get(filepath.Join(host, e.Name()))})
	}
	return &dirFile{ino: ino, ents: ents}, 0
}

func openDevDir() *dirFile {
	return &dirFile{
		ino: devRootIno,
		ents: []dirent{
			{name: ".", ino: devRootIno},
			{name: "..", ino: 1},
			{name: "null", ino: devNullIno},
			{name: "zero", ino: devZeroIno},
		},
	}
}

const direntHeader = 8

func direntLen(name string) int {
	return (direntHeader + len(name) + 1 + 3) &^ 3
}

// getdents fills b with whole records {reclen, ino, name, NUL, pad}, in
// big-endian order. It returns 0 at the end of the directory and EINVAL if
// b cannot hold the next record.
func (d *dirFile) getdents(b []byte) (int, syscallabi.Errno) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for d.pos < len(d.ents) {
		e := d.ents[d.pos]
		reclen := direntLen(e.name)
		if n+reclen > len(b) {
			if n == 0 {
				return 0, syscallabi.EINVAL
			}
			break
		}
		rec := b[n : n+reclen]
		clear(rec)
		binary.BigEndian.PutUint32(rec[0:4], uint32(reclen))
		binary.BigEndian.PutUint32(rec[4:8], e.ino)
		copy(rec[direntHeader:], e.name)
		n += reclen
		d.pos++
	}
	return n, 0
}

// read serves the packed stream: {int32 ino, int32 namelen} in host order
// followed by the name, no terminator, no padding.
func (d *dirFile) read(b []byte) (int, syscallabi.Errno) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.packed == nil {
		d.packed = PackEntries(d.names())
	}
	n := copy(b, d.packed[d.off:])
	d.off += n
	return n, 0
}

func (d *dirFile) names() []PackedEntry {
	out := make([]PackedEntry, len(d.ents))
	for i, e := range d.ents {
		out[i] = PackedEntry{Ino: int32(e.ino), Name: e.name}
	}
	return out
}

func (d *dirFile) write([]byte) (int, syscallabi.Errno) {
	return 0, syscallabi.EISDIR
}

// seek only supports rewinding.
func (d *dirFile) seek(off int64, whence int) (int64, syscallabi.Errno) {
	if off != 0 || whence != syscallabi.SEEK_SET {
		return 0, syscallabi.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos, d.off = 0, 0
	return 0, 0
}

func (d *dirFile) stat(st *syscallabi.Stat) syscallabi.Errno {
	if d.ino == devRootIno {
		return devStat(st, devRootIno)
	}
	*st = syscallabi.Stat{Dev: hostDev, Ino: d.ino, Mode: syscallabi.S_IFDIR | 0o755, Nlink: 2, Blksize: syscallabi.PageSize}
	return 0
}

func (d *dirFile) close() syscallabi.Errno {
	return 0
}

// A PackedEntry is one record of the packed directory format.
type PackedEntry struct {
	Ino  int32
	Name string
}

// PackEntries encodes entries in the packed directory format.
func PackEntries(entries []PackedEntry) []byte {
	size := 0
	for _, e := range entries {
		size += direntHeader + len(e.Name)
	}
	out := make([]byte, 0, size)
	for _, e := range entries {
		out = binary.NativeEndian.AppendUint32(out, uint32(e.Ino))
		out = binary.NativeEndian.AppendUint32(out, uint32(len(e.Name)))
		out = append(out, e.Name...)
	}
	return out
}
