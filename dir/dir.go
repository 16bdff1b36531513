// dir implements directories: packed fixed-size entries stored in a
// directory inode's own data, plus path resolution over them.
//
// An entry is DirEntSize bytes: an 8-byte inode number followed by a
// NUL-padded name of at most NameMax bytes. An entry whose inode
// number is NULLINUM is a free slot; free slots are reused before the
// directory grows. All entry I/O goes through the inode layer.
package dir

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/inode"
	"github.com/minfs/minfs/util"
)

var (
	// ErrNotFound is returned when a name has no entry in the directory.
	ErrNotFound = errors.New("name not found")

	// ErrExists is returned by Insert when the name is already present.
	ErrExists = errors.New("name already exists")

	// ErrNameTooLong is returned when a name exceeds the fixed field.
	ErrNameTooLong = errors.New("name too long")

	// ErrBadName is returned for empty names and names containing the
	// separator or NUL.
	ErrBadName = errors.New("bad name")

	// ErrNotDir is returned when a directory operation is applied to an
	// inode that is not a directory.
	ErrNotDir = errors.New("not a directory")
)

// Entry is one decoded directory entry.
type Entry struct {
	Inum common.Inum
	Name string
}

// checkName validates a component name against the entry format.
func checkName(name string) error {
	if uint64(len(name)) > common.NameMax {
		return fmt.Errorf("name %q: %w", name, ErrNameTooLong)
	}
	if len(name) == 0 || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("name %q: %w", name, ErrBadName)
	}
	return nil
}

// encodeEntry packs an entry into a DirEntSize buffer.
func encodeEntry(inum common.Inum, name string) []byte {
	enc := marshal.NewEnc(common.DirEntSize)
	enc.PutInt(uint64(inum))
	padded := make([]byte, common.NameMax)
	copy(padded, name)
	enc.PutBytes(padded)
	return enc.Finish()
}

// decodeEntry unpacks the entry at buf.
func decodeEntry(buf []byte) Entry {
	dec := marshal.NewDec(buf)
	inum := common.Inum(dec.GetInt())
	name := dec.GetBytes(common.NameMax)
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Entry{Inum: inum, Name: string(name)}
}

// requireDir rejects non-directory inodes.
func requireDir(dp *inode.Inode) error {
	if dp.Ftype != common.FTDir {
		return fmt.Errorf("inode %d (%v): %w", dp.Inum, dp.Ftype, ErrNotDir)
	}
	return nil
}

// scan reads the directory's entries in order, calling fn with each
// entry and its byte offset until fn returns true.
func scan(tbl *inode.Table, dp *inode.Inode, fn func(e Entry, off uint64) bool) error {
	for off := uint64(0); off < dp.Size; off += common.DirEntSize {
		buf, err := tbl.Read(dp, off, common.DirEntSize)
		if err != nil {
			return fmt.Errorf("dir %d: %w", dp.Inum, err)
		}
		if fn(decodeEntry(buf), off) {
			return nil
		}
	}
	return nil
}

// Lookup finds name in directory dp and returns its inode number.
func Lookup(tbl *inode.Table, dp *inode.Inode, name string) (common.Inum, error) {
	if err := requireDir(dp); err != nil {
		return common.NULLINUM, err
	}
	var found common.Inum = common.NULLINUM
	err := scan(tbl, dp, func(e Entry, off uint64) bool {
		if e.Inum != common.NULLINUM && e.Name == name {
			found = e.Inum
			return true
		}
		return false
	})
	if err != nil {
		return common.NULLINUM, err
	}
	if found == common.NULLINUM {
		return common.NULLINUM, fmt.Errorf("lookup %q in dir %d: %w", name, dp.Inum, ErrNotFound)
	}
	return found, nil
}

// Insert links name to inum in directory dp, reusing the first free
// slot or appending a fresh entry when no slot is free. Linking a
// foreign inode bumps its link count.
func Insert(tbl *inode.Table, dp *inode.Inode, name string, inum common.Inum) error {
	if err := requireDir(dp); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if _, err := Lookup(tbl, dp, name); err == nil {
		return fmt.Errorf("insert %q in dir %d: %w", name, dp.Inum, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	target, err := tbl.Get(inum)
	if err != nil {
		return fmt.Errorf("insert %q: %w", name, err)
	}
	if target.Ftype == common.FTFree {
		return fmt.Errorf("insert %q: inode %d is free: %w", name, inum, inode.ErrInvalidInode)
	}

	off := dp.Size
	err = scan(tbl, dp, func(e Entry, o uint64) bool {
		if e.Inum == common.NULLINUM {
			off = o
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if _, err := tbl.Write(dp, off, encodeEntry(inum, name)); err != nil {
		return fmt.Errorf("insert %q in dir %d: %w", name, dp.Inum, err)
	}
	util.DPrintf(5, "dir %d: insert %q -> %d at %d\n", dp.Inum, name, inum, off)

	if inum != dp.Inum {
		target.Nlink++
		if err := tbl.Put(target); err != nil {
			return fmt.Errorf("insert %q: %w", name, err)
		}
	}
	return nil
}

// Remove unlinks name from directory dp by marking its slot free. The
// directory is not compacted. The target's link count drops by one.
func Remove(tbl *inode.Table, dp *inode.Inode, name string) error {
	if err := requireDir(dp); err != nil {
		return err
	}
	var hit *Entry
	var hitOff uint64
	err := scan(tbl, dp, func(e Entry, off uint64) bool {
		if e.Inum != common.NULLINUM && e.Name == name {
			hit, hitOff = &e, off
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if hit == nil {
		return fmt.Errorf("remove %q from dir %d: %w", name, dp.Inum, ErrNotFound)
	}
	if _, err := tbl.Write(dp, hitOff, encodeEntry(common.NULLINUM, "")); err != nil {
		return fmt.Errorf("remove %q from dir %d: %w", name, dp.Inum, err)
	}
	util.DPrintf(5, "dir %d: remove %q\n", dp.Inum, name)

	if hit.Inum != dp.Inum {
		target, err := tbl.Get(hit.Inum)
		if err != nil {
			return fmt.Errorf("remove %q: %w", name, err)
		}
		if target.Nlink > 0 {
			target.Nlink--
			if err := tbl.Put(target); err != nil {
				return fmt.Errorf("remove %q: %w", name, err)
			}
		}
	}
	return nil
}

// List returns the live entries of directory dp in slot order.
func List(tbl *inode.Table, dp *inode.Inode) ([]Entry, error) {
	if err := requireDir(dp); err != nil {
		return nil, err
	}
	var entries []Entry
	err := scan(tbl, dp, func(e Entry, off uint64) bool {
		if e.Inum != common.NULLINUM {
			entries = append(entries, e)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Resolve walks path from root, one component per lookup. The empty
// path, or a path of only separators, resolves to root itself. Every
// inode a component is looked up in must be a directory.
func Resolve(tbl *inode.Table, root common.Inum, path string) (common.Inum, error) {
	cur := root
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		dp, err := tbl.Get(cur)
		if err != nil {
			return common.NULLINUM, fmt.Errorf("resolve %q: %w", path, err)
		}
		next, err := Lookup(tbl, dp, name)
		if err != nil {
			return common.NULLINUM, fmt.Errorf("resolve %q: %w", path, err)
		}
		cur = next
	}
	return cur, nil
}
