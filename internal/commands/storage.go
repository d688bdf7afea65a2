package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/flipwire/flipwire/internal/protocol"
	"github.com/flipwire/flipwire/internal/transfer"
	"github.com/flipwire/flipwire/internal/tui"
)

// checkPath rejects remote paths that cannot fit a single request.
func (d *Dispatcher) checkPath(remote string) error {
	if !transfer.PathFits(d.mtu, len(remote)) {
		return fmt.Errorf("remote path too long for %d-byte transmission unit: %q", d.mtu, remote)
	}
	return nil
}

// Upload copies a local file to the peripheral. When remote names a
// directory (trailing slash) the local base name is appended.
func (d *Dispatcher) Upload(ctx context.Context, local, remote string) error {
	if remote == "" || remote[len(remote)-1] == '/' {
		remote = path.Join(remote, path.Base(local))
	}
	if err := d.checkPath(remote); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", local, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", local, err)
	}

	bar := tui.StartProgress(fmt.Sprintf("uploading %s -> %s", local, remote))
	err = d.engine.Upload(ctx, f, info.Size(), remote, bar.Update)
	bar.Finish()
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %s (%d bytes) to %s\n", local, info.Size(), remote)
	return nil
}

// Download copies a peripheral file to a local path. A partial sink
// file is left in place when the stream dies; the error says so.
func (d *Dispatcher) Download(ctx context.Context, remote, local string) error {
	if err := d.checkPath(remote); err != nil {
		return err
	}
	if local == "" {
		local = path.Base(remote)
	}

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("creating %s: %w", local, err)
	}
	defer f.Close()

	bar := tui.StartProgress(fmt.Sprintf("downloading %s -> %s", remote, local))
	err = d.engine.Download(ctx, remote, f, bar.Update)
	bar.Finish()
	if err != nil {
		return err
	}
	info, statErr := f.Stat()
	if statErr == nil {
		fmt.Printf("Downloaded %s (%d bytes) to %s\n", remote, info.Size(), local)
	} else {
		fmt.Printf("Downloaded %s to %s\n", remote, local)
	}
	return nil
}

// List prints a peripheral directory, directories first, each group
// name-sorted.
func (d *Dispatcher) List(ctx context.Context, remote string) error {
	if err := d.checkPath(remote); err != nil {
		return err
	}
	entries, err := d.engine.List(ctx, remote)
	if err != nil {
		return err
	}

	var dirs, files []transfer.Entry
	for _, e := range entries {
		if e.Dir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	for _, e := range dirs {
		fmt.Printf("  %s/\n", e.Name)
	}
	for _, e := range files {
		fmt.Printf("  %s (%d bytes)\n", e.Name, e.Size)
	}
	if len(entries) == 0 {
		fmt.Println("  (empty)")
	}
	return nil
}

// Remove deletes a peripheral path, recursing into directories.
func (d *Dispatcher) Remove(ctx context.Context, remote string) error {
	if err := d.checkPath(remote); err != nil {
		return err
	}
	if _, err := d.session.CallOnce(ctx, &protocol.StorageDeleteRequest{Path: remote, Recursive: true}); err != nil {
		return fmt.Errorf("removing %s: %w", remote, err)
	}
	fmt.Printf("Removed %s\n", remote)
	return nil
}
