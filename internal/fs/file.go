package fs

// readAt reads up to len(buf) bytes from inode starting at offset,
// returning the number of bytes actually copied. Used both by Read (for
// regular files, capped at inode.Size) and by directory-entry scanning in
// path.go, which wants every record whether or not it is "live".
func (fs *Filesystem) readAt(inode *FileInfo, offset uint64, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		blockIndex := (offset + uint64(n)) / BlockSize
		inBlock := int((offset + uint64(n)) % BlockSize)

		blk, err := fs.blockNumberAt(inode, blockIndex)
		if err != nil {
			return n, err
		}

		want := len(buf) - n
		if avail := BlockSize - inBlock; want > avail {
			want = avail
		}

		if blk == 0 {
			// A hole: reads as zero, matching a file that was grown by
			// Resize but never written at this offset.
			for i := 0; i < want; i++ {
				buf[n+i] = 0
			}
			n += want
			continue
		}

		e, err := fs.bc.Get(blk)
		if err != nil {
			return n, err
		}
		copy(buf[n:n+want], e.Data[inBlock:inBlock+want])
		if err := fs.bc.Put(e); err != nil {
			return n, err
		}
		n += want
	}
	return n, nil
}

// writeAt writes len(buf) bytes into inode starting at offset, allocating
// blocks on demand via ensureBlockAt. Callers are responsible for having
// already grown inode.Size (Write calls Resize first, spec.md §4.6).
func (fs *Filesystem) writeAt(inode *FileInfo, offset uint64, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		blockIndex := (offset + uint64(n)) / BlockSize
		inBlock := int((offset + uint64(n)) % BlockSize)

		blk, err := fs.ensureBlockAt(inode, blockIndex)
		if err != nil {
			return n, err
		}

		want := len(buf) - n
		if avail := BlockSize - inBlock; want > avail {
			want = avail
		}

		e, err := fs.bc.Get(blk)
		if err != nil {
			return n, err
		}
		copy(e.Data[inBlock:inBlock+want], buf[n:n+want])
		if err := fs.bc.Put(e); err != nil {
			return n, err
		}
		n += want
	}
	return n, nil
}

// Read copies up to count bytes from inode at offset into buf (which must
// be at least count bytes), capping count at size-offset (spec.md §4.6:
// "read caps count at size - offset"). It always performs the final
// tail-block copy even when count is smaller than one block and does not
// special-case offset%BlockSize != 0 beyond computing the correct
// in-block position, matching original_source/tile/kernel/file.c's
// file_read rather than adding a short-circuit (spec.md §9).
func (fs *Filesystem) Read(inode *FileInfo, offset uint64, buf []byte, count int) (int, error) {
	if offset >= inode.Size {
		return 0, nil
	}
	if max := inode.Size - offset; uint64(count) > max {
		count = int(max)
	}
	if count <= 0 {
		return 0, nil
	}
	return fs.readAt(inode, offset, buf[:count])
}

// Write writes count bytes from buf to inode at offset, growing the file
// first via Resize if offset+count exceeds the current size (spec.md
// §4.6: "write calls resize(offset + count) first").
func (fs *Filesystem) Write(inode *FileInfo, offset uint64, buf []byte, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	end := offset + uint64(count)
	if end > inode.Size {
		if err := fs.Resize(inode, end); err != nil {
			return 0, err
		}
	}
	return fs.writeAt(inode, offset, buf[:count])
}
