// fsdump mounts a disk image read-only and prints the superblock and
// the directory tree.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/fs"
	"github.com/minfs/minfs/inode"
)

func walk(fsys *fs.FS, path string, depth int) error {
	entries, err := fsys.List(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := path + "/" + e.Name
		ino, err := fsys.Resolve(child)
		if err != nil {
			return err
		}
		fmt.Printf("%*s%-24s inum=%-4d %-4s %8s nlink=%d\n",
			2*depth, "", e.Name, ino.Inum, ino.Ftype, humanize.IBytes(ino.Size), ino.Nlink)
		if ino.Ftype == common.FTDir {
			if err := walk(fsys, child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func countAllocated(tbl *inode.Table, n uint64) (uint64, error) {
	var used uint64
	for inum := common.Inum(1); uint64(inum) < n; inum++ {
		ino, err := tbl.Get(inum)
		if err != nil {
			return 0, err
		}
		if ino.Ftype != common.FTFree {
			used++
		}
	}
	return used, nil
}

func main() {
	var (
		path      = flag.String("disk", "minfs.img", "disk image path")
		blockSize = flag.Uint64("bs", 4096, "block size the image was formatted with")
	)
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.Kitchen}))

	info, err := os.Stat(*path)
	if err != nil {
		log.Error("stat disk", "path", *path, "err", err)
		os.Exit(1)
	}
	d, err := disk.NewFileDisk(*path, *blockSize, uint64(info.Size())/ *blockSize)
	if err != nil {
		log.Error("open disk", "path", *path, "err", err)
		os.Exit(1)
	}
	defer d.Close()

	fsys, err := fs.Mount(d)
	if err != nil {
		log.Error("mount", "path", *path, "err", err)
		os.Exit(1)
	}
	sb := fsys.Super()

	freeBlocks, err := fsys.Inodes().Store().NumFree()
	if err != nil {
		log.Error("scan bitmap", "err", err)
		os.Exit(1)
	}
	usedInodes, err := countAllocated(fsys.Inodes(), sb.NInodes)
	if err != nil {
		log.Error("scan inode table", "err", err)
		os.Exit(1)
	}

	fmt.Printf("volume:     %s\n", sb.VolumeID)
	fmt.Printf("geometry:   %d blocks x %s (%s)\n",
		sb.NBlocks, humanize.IBytes(sb.BlockSize), humanize.IBytes(sb.NBlocks*sb.BlockSize))
	fmt.Printf("layout:     inodes@%d bitmap@%d data@%d\n",
		sb.InodeStart, sb.BitmapStart, sb.DataStart)
	fmt.Printf("inodes:     %d/%d used\n", usedInodes, sb.NInodes)
	fmt.Printf("data:       %d/%d blocks free (%s free)\n",
		freeBlocks, sb.NData, humanize.IBytes(freeBlocks*sb.BlockSize))
	fmt.Printf("\n/\n")
	if err := walk(fsys, "", 1); err != nil {
		log.Error("walk", "err", err)
		os.Exit(1)
	}
}
