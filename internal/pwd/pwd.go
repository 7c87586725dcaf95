// Package pwd reads the guest's passwd and group databases through the
// guest's own file calls.
//
// Both files are colon-separated text. Empty lines and lines starting with
// '#' are skipped. Every other line must parse: a lookup scans the whole
// file and fails with EINVAL on the first malformed line, even when a
// matching record came earlier. A lookup that finds nothing returns nil and
// leaves the error slot untouched.
package pwd

import (
	"context"
	"strconv"
	"strings"

	"github.com/kmrgirish/guestsys/internal/reent"
)

// Passwd is one line of the passwd file:
// name:passwd:uid:gid:gecos:dir:shell.
type Passwd struct {
	Name   string
	Passwd string
	Uid    int
	Gid    int
	Gecos  string
	Dir    string
	Shell  string
}

// Group is one line of the group file: name:passwd:gid[:members]. The
// member list is not parsed and is always empty.
type Group struct {
	Name    string
	Passwd  string
	Gid     int
	Members []string
}

// A Database names the files lookups read.
type Database struct {
	PasswdFile string
	GroupFile  string
}

// Default reads the conventional locations.
var Default = Database{
	PasswdFile: "/etc/passwd",
	GroupFile:  "/etc/group",
}

func parseID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func parsePasswd(line string) (*Passwd, bool) {
	f := strings.Split(line, ":")
	if len(f) != 7 {
		return nil, false
	}
	uid, ok := parseID(f[2])
	if !ok {
		return nil, false
	}
	gid, ok := parseID(f[3])
	if !ok {
		return nil, false
	}
	return &Passwd{Name: f[0], Passwd: f[1], Uid: uid, Gid: gid, Gecos: f[4], Dir: f[5], Shell: f[6]}, true
}

func parseGroup(line string) (*Group, bool) {
	f := strings.Split(line, ":")
	if len(f) != 3 && len(f) != 4 {
		return nil, false
	}
	gid, ok := parseID(f[2])
	if !ok {
		return nil, false
	}
	return &Group{Name: f[0], Passwd: f[1], Gid: gid, Members: []string{}}, true
}

// scan returns the first record of the file at path that match accepts.
func scan[T any](r *reent.Reent, path string, parse func(string) (*T, bool), match func(*T) bool) *T {
	c := OpenCursorR(r, path)
	if c == nil {
		return nil
	}
	defer c.CloseR(r)

	var found *T
	for {
		v, st := next(c, r, parse)
		switch st {
		case lineEOF:
			return found
		case lineError:
			return nil
		}
		if found == nil && match(v) {
			found = v
		}
	}
}

func (db Database) GetpwnamR(r *reent.Reent, name string) *Passwd {
	return scan(r, db.PasswdFile, parsePasswd, func(p *Passwd) bool { return p.Name == name })
}

func (db Database) GetpwuidR(r *reent.Reent, uid int) *Passwd {
	return scan(r, db.PasswdFile, parsePasswd, func(p *Passwd) bool { return p.Uid == uid })
}

func (db Database) GetgrnamR(r *reent.Reent, name string) *Group {
	return scan(r, db.GroupFile, parseGroup, func(g *Group) bool { return g.Name == name })
}

func (db Database) GetgrgidR(r *reent.Reent, gid int) *Group {
	return scan(r, db.GroupFile, parseGroup, func(g *Group) bool { return g.Gid == gid })
}

func GetpwnamR(r *reent.Reent, name string) *Passwd { return Default.GetpwnamR(r, name) }

func Getpwnam(ctx context.Context, name string) *Passwd {
	return GetpwnamR(reent.FromContext(ctx), name)
}

func GetpwuidR(r *reent.Reent, uid int) *Passwd { return Default.GetpwuidR(r, uid) }

func Getpwuid(ctx context.Context, uid int) *Passwd {
	return GetpwuidR(reent.FromContext(ctx), uid)
}

func GetgrnamR(r *reent.Reent, name string) *Group { return Default.GetgrnamR(r, name) }

func Getgrnam(ctx context.Context, name string) *Group {
	return GetgrnamR(reent.FromContext(ctx), name)
}

func GetgrgidR(r *reent.Reent, gid int) *Group { return Default.GetgrgidR(r, gid) }

func Getgrgid(ctx context.Context, gid int) *Group {
	return GetgrgidR(reent.FromContext(ctx), gid)
}

// Iteration keeps one cursor per file in the calling context.

type entKey struct {
	path string
}

func cursorFor(r *reent.Reent, path string) *Cursor {
	if c, ok := r.Slot(entKey{path}).(*Cursor); ok {
		return c
	}
	c := OpenCursorR(r, path)
	if c != nil {
		r.SetSlot(entKey{path}, c)
	}
	return c
}

func endent(r *reent.Reent, path string) {
	if c, ok := r.Slot(entKey{path}).(*Cursor); ok {
		c.CloseR(r)
		r.SetSlot(entKey{path}, nil)
	}
}

// SetpwentR rewinds passwd iteration.
func (db Database) SetpwentR(r *reent.Reent) {
	endent(r, db.PasswdFile)
}

// GetpwentR returns the next passwd record, or nil at the end of the file
// or on a malformed line.
func (db Database) GetpwentR(r *reent.Reent) *Passwd {
	c := cursorFor(r, db.PasswdFile)
	if c == nil {
		return nil
	}
	p, _ := next(c, r, parsePasswd)
	return p
}

func (db Database) EndpwentR(r *reent.Reent) {
	endent(r, db.PasswdFile)
}

// SetgrentR rewinds group iteration.
func (db Database) SetgrentR(r *reent.Reent) {
	endent(r, db.GroupFile)
}

func (db Database) GetgrentR(r *reent.Reent) *Group {
	c := cursorFor(r, db.GroupFile)
	if c == nil {
		return nil
	}
	g, _ := next(c, r, parseGroup)
	return g
}

func (db Database) EndgrentR(r *reent.Reent) {
	endent(r, db.GroupFile)
}

func SetpwentR(r *reent.Reent) { Default.SetpwentR(r) }

func Setpwent(ctx context.Context) { SetpwentR(reent.FromContext(ctx)) }

func GetpwentR(r *reent.Reent) *Passwd { return Default.GetpwentR(r) }

func Getpwent(ctx context.Context) *Passwd { return GetpwentR(reent.FromContext(ctx)) }

func EndpwentR(r *reent.Reent) { Default.EndpwentR(r) }

func Endpwent(ctx context.Context) { EndpwentR(reent.FromContext(ctx)) }

func SetgrentR(r *reent.Reent) { Default.SetgrentR(r) }

func Setgrent(ctx context.Context) { SetgrentR(reent.FromContext(ctx)) }

func GetgrentR(r *reent.Reent) *Group { return Default.GetgrentR(r) }

func Getgrent(ctx context.Context) *Group { return GetgrentR(reent.FromContext(ctx)) }

func EndgrentR(r *reent.Reent) { Default.EndgrentR(r) }

func Endgrent(ctx context.Context) { EndgrentR(reent.FromContext(ctx)) }
