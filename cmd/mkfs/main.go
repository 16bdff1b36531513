// mkfs formats a disk image.
//
// Geometry comes from flags, a YAML profile (-profile), or environment
// defaults (MINFS_BLOCK_SIZE, MINFS_SIZE, MINFS_INODES, loaded from a
// .env file when present), in that order of precedence.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"

	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/fs"
)

// profile is the YAML geometry file format.
type profile struct {
	BlockSize uint64 `yaml:"block_size"`
	Size      string `yaml:"size"` // device size, humanized ("16 MiB")
	Inodes    uint64 `yaml:"inodes"`
}

func envUint(key string, def uint64) uint64 {
	s, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return def
	}
	return v
}

func envStr(key, def string) string {
	if s, ok := os.LookupEnv(key); ok {
		return s
	}
	return def
}

func main() {
	_ = godotenv.Load()

	var (
		path        = flag.String("disk", envStr("MINFS_DISK", "minfs.img"), "disk image path")
		blockSize   = flag.Uint64("bs", envUint("MINFS_BLOCK_SIZE", 4096), "block size in bytes")
		size        = flag.String("size", envStr("MINFS_SIZE", "16 MiB"), "device size (accepts units, e.g. 64MiB)")
		inodes      = flag.Uint64("inodes", envUint("MINFS_INODES", 1024), "inode table slots")
		profilePath = flag.String("profile", "", "YAML geometry profile (overrides -bs, -size, -inodes)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	sizeBytes, err := humanize.ParseBytes(*size)
	if err != nil {
		log.Error("bad -size", "size", *size, "err", err)
		os.Exit(1)
	}

	if *profilePath != "" {
		buf, err := os.ReadFile(*profilePath)
		if err != nil {
			log.Error("read profile", "path", *profilePath, "err", err)
			os.Exit(1)
		}
		var p profile
		if err := yaml.Unmarshal(buf, &p); err != nil {
			log.Error("parse profile", "path", *profilePath, "err", err)
			os.Exit(1)
		}
		if p.BlockSize != 0 {
			*blockSize = p.BlockSize
		}
		if p.Size != "" {
			if sizeBytes, err = humanize.ParseBytes(p.Size); err != nil {
				log.Error("bad profile size", "size", p.Size, "err", err)
				os.Exit(1)
			}
		}
		if p.Inodes != 0 {
			*inodes = p.Inodes
		}
		log.Debug("loaded profile", "path", *profilePath)
	}

	nBlocks := sizeBytes / *blockSize
	d, err := disk.NewFileDisk(*path, *blockSize, nBlocks)
	if err != nil {
		log.Error("open disk", "path", *path, "err", err)
		os.Exit(1)
	}
	defer d.Close()

	fsys, err := fs.Mkfs(d, *inodes)
	if err != nil {
		log.Error("mkfs", "err", err)
		os.Exit(1)
	}
	sb := fsys.Super()
	log.Info("formatted",
		"path", *path,
		"volume", sb.VolumeID,
		"size", humanize.IBytes(sb.NBlocks*sb.BlockSize),
		"block_size", humanize.IBytes(sb.BlockSize),
		"inodes", sb.NInodes,
		"data", humanize.IBytes(sb.NData*sb.BlockSize))
	if err := fsys.Unmount(); err != nil {
		log.Error("unmount", "err", err)
		os.Exit(1)
	}
	fmt.Println(sb.VolumeID)
}
