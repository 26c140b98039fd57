package fs

import "strings"

// NormalizePathname collapses every run of slashes (including a leading
// run) down to one, grounded on original_source/tile/kernel/file.c:864-887's
// normalize_pathname: a character-by-character loop whose inner
// `while (pathname[i] == '/')` collapses any run of slashes it sees,
// leading runs included, so "//a/b" becomes "/a/b". A trailing slash is
// copied straight through, just as the original writes it before the
// final NUL: "/a/b/" stays "/a/b/".
func NormalizePathname(p string) string {
	if p == "" {
		return p
	}
	var b strings.Builder
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
			b.WriteByte('/')
			continue
		}
		prevSlash = false
		b.WriteByte(c)
	}
	return b.String()
}

// splitComponents breaks a normalized pathname into its slash-separated
// components, discarding empty leading/trailing ones.
func splitComponents(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NameToFile resolves path to an inode, starting from the root inode for
// an absolute path or from cwd for a relative one (spec.md §4.6). Every
// intermediate directory must grant the caller read+execute access;
// traversal aborts immediately on the first access denial or missing
// component.
func (fs *Filesystem) NameToFile(path string, cwd uint32, uid uint32) (*FileInfo, error) {
	path = NormalizePathname(path)

	var cur *FileInfo
	var err error
	if strings.HasPrefix(path, "/") {
		cur, err = fs.ReadInode(fs.sb.RootFileInfo)
	} else {
		cur, err = fs.ReadInode(cwd)
	}
	if err != nil {
		return nil, err
	}

	for _, name := range splitComponents(path) {
		if cur.Type != FTDirectory {
			return nil, errInvalidf("NameToFile: %q is not a directory", name)
		}
		if !Access(cur, uid, ROK|XOK) {
			return nil, errPermissionf("NameToFile: %q", name)
		}
		entry, err := fs.lookupDirEntry(cur, name)
		if err != nil {
			return nil, err
		}
		cur, err = fs.ReadInode(entry.Num)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// lookupDirEntry linearly scans dir's directory-entry records for name.
func (fs *Filesystem) lookupDirEntry(dir *FileInfo, name string) (*DirEntry, error) {
	buf := make([]byte, dirEntryEncodedSize)
	count := dir.Size / uint64(dirEntryEncodedSize)
	for i := uint64(0); i < count; i++ {
		off := i * uint64(dirEntryEncodedSize)
		n, err := fs.readAt(dir, off, buf)
		if err != nil {
			return nil, err
		}
		if n < len(buf) {
			break
		}
		entry := DecodeDirEntry(buf)
		if entry.Num != 0 && entry.Name == name {
			return entry, nil
		}
	}
	return nil, errNotFoundf("lookupDirEntry: %q", name)
}
