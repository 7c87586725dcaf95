package kernel

import (
	"path"
	"path/filepath"
	"strings"
)

// normalizePath resolves p against cwd into a clean absolute guest path.
// ".." at the root stays at the root, so the result never escapes it.
func normalizePath(cwd, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = cwd + "/" + p
	}
	return path.Clean("/" + p)
}

// hostPath maps a clean guest path to the host.
func (k *Kernel) hostPath(guest string) string {
	return filepath.Join(k.root, filepath.FromSlash(guest))
}

func isDevPath(guest string) bool {
	return guest == "/dev" || strings.HasPrefix(guest, "/dev/")
}

func (p *Proc) normalize(path string) string {
	p.k.mu.Lock()
	cwd := p.cwd
	p.k.mu.Unlock()
	return normalizePath(cwd, path)
}
