package fs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tile/internal/block"
	"tile/internal/kerr"
	"tile/internal/klog"
)

func newTestFS(t *testing.T, numBlocks uint32) *Filesystem {
	t.Helper()
	dev := block.NewMem(BlockSize, numBlocks)
	fsys, err := Format(dev, 4, klog.Discard())
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return fsys
}

func TestNameToFileRoot(t *testing.T) {
	fsys := newTestFS(t, 64)
	root, err := fsys.NameToFile("/", fsys.RootInode(), 0)
	if err != nil {
		t.Fatalf("NameToFile(/) error = %v", err)
	}
	if root.Num != fsys.RootInode() {
		t.Errorf("root.Num = %d, want %d", root.Num, fsys.RootInode())
	}
	if root.Type != FTDirectory {
		t.Errorf("root.Type = %v, want FTDirectory", root.Type)
	}
}

func TestNameToFileMissing(t *testing.T) {
	fsys := newTestFS(t, 64)
	if _, err := fsys.NameToFile("/missing", fsys.RootInode(), 0); err == nil {
		t.Error("expected error resolving /missing")
	}
}

// TestWriteReadRoundTrip is spec.md's S2 end-to-end scenario plus the
// byte-count table from §8.5.
func TestWriteReadRoundTrip(t *testing.T) {
	sizes := []int{0, 1, BlockSize - 1, BlockSize, BlockSize + 1, L0End, L0End + 1}
	for _, n := range sizes {
		fsys := newTestFS(t, 512)
		fi, err := fsys.Creat("/tmp_a", fsys.RootInode(), 0, defaultCreateAccess)
		if err != nil {
			t.Fatalf("n=%d: Creat() error = %v", n, err)
		}
		data := bytes.Repeat([]byte{0x5a}, n)
		written, err := fsys.Write(fi, 0, data, len(data))
		if err != nil {
			t.Fatalf("n=%d: Write() error = %v", n, err)
		}
		if written != n {
			t.Fatalf("n=%d: wrote %d bytes, want %d", n, written, n)
		}

		out := make([]byte, n)
		read, err := fsys.Read(fi, 0, out, n)
		if err != nil {
			t.Fatalf("n=%d: Read() error = %v", n, err)
		}
		if read != n {
			t.Fatalf("n=%d: read %d bytes, want %d", n, read, n)
		}
		if !bytes.Equal(data, out) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

// TestWriteReadAcrossIndirection is spec.md's S3 scenario: writing past
// L1End must populate a level-2 pointer.
func TestWriteReadAcrossIndirection(t *testing.T) {
	fsys := newTestFS(t, 4200)
	fi, err := fsys.Creat("/big", fsys.RootInode(), 0, defaultCreateAccess)
	if err != nil {
		t.Fatalf("Creat() error = %v", err)
	}

	n := L1End + 1
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := fsys.Write(fi, 0, data, n); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if fi.Blocks[DirectBlocks] == 0 {
		t.Error("expected single-indirect root block to be populated")
	}
	if fi.Blocks[DirectBlocks+1] == 0 {
		t.Error("expected double-indirect root block to be populated")
	}

	out := make([]byte, n)
	if _, err := fsys.Read(fi, 0, out, n); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, out) {
		t.Error("round trip mismatch across indirection levels")
	}
}

func TestResizeShrinkFreesBlocks(t *testing.T) {
	fsys := newTestFS(t, 512)
	fi, err := fsys.Creat("/shrink", fsys.RootInode(), 0, defaultCreateAccess)
	if err != nil {
		t.Fatalf("Creat() error = %v", err)
	}
	if _, err := fsys.Write(fi, 0, bytes.Repeat([]byte{1}, 4*BlockSize), 4*BlockSize); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	before := fsys.sb.NextFreeBlock
	if err := fsys.Resize(fi, BlockSize); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if fsys.sb.NextFreeBlock <= before {
		t.Error("expected shrink to return blocks to the free list")
	}
	if fi.Blocks[1] != 0 || fi.Blocks[2] != 0 || fi.Blocks[3] != 0 {
		t.Error("expected released direct block slots to be zeroed")
	}
}

func TestPermissionCheck(t *testing.T) {
	owner := FileInfo{OwnerUser: 1, Access: defaultCreateAccess}
	tests := []struct {
		name string
		uid  uint32
		mode AccessMode
		want bool
	}{
		{"root bypasses", 0, WOK, true},
		{"owner can read", 1, ROK, true},
		{"owner can write", 1, WOK, true},
		{"other can read", 2, ROK, true},
		{"other cannot write", 2, WOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Access(&owner, tt.uid, tt.mode); got != tt.want {
				t.Errorf("Access(uid=%d, mode=%v) = %v, want %v", tt.uid, tt.mode, got, tt.want)
			}
		})
	}
}

func TestCreatExistingFails(t *testing.T) {
	fsys := newTestFS(t, 64)
	if _, err := fsys.Creat("/dup", fsys.RootInode(), 0, defaultCreateAccess); err != nil {
		t.Fatalf("first Creat() error = %v", err)
	}
	if _, err := fsys.Creat("/dup", fsys.RootInode(), 0, defaultCreateAccess); !errors.Is(err, kerr.ErrExists) {
		t.Errorf("second Creat() error = %v, want ErrExists", err)
	}
}

func TestSuperblockRoundTrip(t *testing.T) {
	dev := block.NewMem(BlockSize, 64)
	fsys, err := Format(dev, 2, klog.Discard())
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := fsys.Superblock().Encode()
	if err := fsys.Unmount(); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}

	got := make([]byte, BlockSize)
	if err := dev.ReadBlock(0, got); err != nil {
		t.Fatalf("ReadBlock(0) error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("block 0 on disk does not match the in-core superblock encoding at unmount time (-want +got):\n%s", diff)
	}
}

func TestNormalizePathname(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/a/b/c", "/a/b/c"},
		{"/a//b", "/a/b"},
		{"/a/b/", "/a/b/"},
		{"//a/b", "/a/b"},
		{"///a", "/a"},
		{"a/b", "a/b"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := NormalizePathname(tt.in); got != tt.want {
			t.Errorf("NormalizePathname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPopBlocksSecondBufferBranch(t *testing.T) {
	fsys := newTestFS(t, 4200)
	fi, err := fsys.Creat("/cascade", fsys.RootInode(), 0, defaultCreateAccess)
	if err != nil {
		t.Fatalf("Creat() error = %v", err)
	}
	n := L1End + BlockSize
	if _, err := fsys.Write(fi, 0, bytes.Repeat([]byte{1}, n), n); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if fi.Blocks[DirectBlocks] == 0 {
		t.Fatal("expected single-indirect block to be populated before shrink")
	}

	if err := fsys.Resize(fi, L0End); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if fi.Blocks[DirectBlocks] != 0 {
		t.Error("expected the now-empty single-indirect root block to be released")
	}
}
