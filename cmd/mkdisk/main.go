// Command mkdisk formats a block image matching spec §6's on-disk layout
// and populates it from a host directory's top-level files, the host-side counterpart
// of the teacher's own mkfs command (mkfs/mkfs.go) — rebuilt here on
// spf13/cobra + spf13/pflag, the way GoogleCloudPlatform-gcsfuse's cmd/
// packages give every host tool a real flag surface instead of mkfs.go's
// hand-rolled os.Args parsing.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rvkernel/fs"
)

const (
	defaultTotalBlocks       = 8192
	defaultInodeBitmapBlocks = 4
)

func main() {
	var (
		output            string
		skelDir           string
		totalBlocks       int
		inodeBitmapBlocks int
	)

	root := &cobra.Command{
		Use:   "mkdisk",
		Short: "Format a disk image and populate it from a skeleton directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(output, skelDir, totalBlocks, inodeBitmapBlocks)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&output, "output", "o", "", "path of the disk image to create (required)")
	flags.StringVarP(&skelDir, "skel", "s", "", "host directory whose files seed the image (required)")
	flags.IntVar(&totalBlocks, "blocks", defaultTotalBlocks, "total 512-byte blocks in the image")
	flags.IntVar(&inodeBitmapBlocks, "inode-bitmap-blocks", defaultInodeBitmapBlocks, "blocks reserved for the inode bitmap")
	root.MarkFlagRequired("output")
	root.MarkFlagRequired("skel")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(output, skelDir string, totalBlocks, inodeBitmapBlocks int) error {
	disk, err := createDiskFile(output, totalBlocks)
	if err != nil {
		return fmt.Errorf("mkdisk: %w", err)
	}
	defer disk.Close()

	efs := fs.CreateFilesystem(disk, totalBlocks, inodeBitmapBlocks)
	root := fs.RootInode(efs)

	if err := addFiles(root, skelDir); err != nil {
		return err
	}
	root.SyncAll()

	names := root.Ls()
	fmt.Fprintf(os.Stderr, "mkdisk: wrote %s (%d blocks, %d files)\n", output, totalBlocks, len(names))
	return nil
}
