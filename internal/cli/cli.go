// Package cli defines the flipwire command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flipwire/flipwire/internal/ble"
	"github.com/flipwire/flipwire/internal/commands"
	"github.com/flipwire/flipwire/internal/config"
	"github.com/flipwire/flipwire/internal/rpc"
)

// commandTimeout bounds each individual RPC round trip. Transfers take
// longer overall but every chunk acknowledgment fits well inside this.
const commandTimeout = 30 * time.Second

// CLI is the root command structure for flipwire.
type CLI struct {
	Flipper    string `short:"f" required:"" help:"Flipper device name to connect to (e.g. Sklo)"`
	Disconnect bool   `short:"d" help:"Disconnect from the device after the command completes"`
	Verbose    bool   `short:"v" help:"Enable verbose debug output"`

	Upload   UploadCmd   `cmd:"" aliases:"ul" help:"Upload a local file to the device"`
	Download DownloadCmd `cmd:"" help:"Download a file from the device"`
	Launch   LaunchCmd   `cmd:"" help:"Launch an app on the device"`
	Ls       LsCmd       `cmd:"" help:"List a directory on the device"`
	Rm       RmCmd       `cmd:"" help:"Remove a file or directory on the device"`
	Alert    AlertCmd    `cmd:"" help:"Play the locate alert on the device"`
	Synctime SynctimeCmd `cmd:"" help:"Set the device clock to the host time"`
}

// run connects, opens a session, and executes fn against a dispatcher.
// Ctrl-C cancels by closing the channel; every layer above observes the
// disconnect and unwinds.
func run(globals *CLI, fn func(ctx context.Context, d *commands.Dispatcher) error) error {
	log := config.NewLogger(globals.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := ble.Connect(globals.Flipper, log)
	if err != nil {
		return err
	}
	ch, err := ble.OpenChannel(device, log)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ch.Close()
	}()

	session := rpc.NewSession(ch, rpc.Options{Timeout: commandTimeout, Logger: log})
	defer session.Close()

	err = fn(ctx, commands.NewDispatcher(session, ch.MTU(), log))

	if globals.Disconnect {
		if derr := device.Disconnect(); derr != nil {
			log.Debug().Err(derr).Msg("disconnect failed")
		}
	}
	return err
}

type UploadCmd struct {
	Local  string `arg:"" help:"Local file to upload"`
	Remote string `arg:"" optional:"" default:"/ext/" help:"Remote destination path"`
}

func (c *UploadCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.Upload(ctx, c.Local, c.Remote)
	})
}

type DownloadCmd struct {
	Remote string `arg:"" help:"Remote file to download"`
	Local  string `arg:"" optional:"" help:"Local destination path (defaults to the remote base name)"`
}

func (c *DownloadCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.Download(ctx, c.Remote, c.Local)
	})
}

type LaunchCmd struct {
	App  string `arg:"" help:"App name or full path (e.g. /ext/apps/Tools/app.fap)"`
	Args string `arg:"" optional:"" help:"Arguments passed to the app"`
}

func (c *LaunchCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.Launch(ctx, c.App, c.Args)
	})
}

type LsCmd struct {
	Path string `arg:"" optional:"" default:"/ext" help:"Directory to list"`
}

func (c *LsCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.List(ctx, c.Path)
	})
}

type RmCmd struct {
	Path string `arg:"" help:"File or directory to remove (directories are removed recursively)"`
}

func (c *RmCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.Remove(ctx, c.Path)
	})
}

type AlertCmd struct{}

func (c *AlertCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.Alert(ctx)
	})
}

type SynctimeCmd struct{}

func (c *SynctimeCmd) Run(globals *CLI) error {
	return run(globals, func(ctx context.Context, d *commands.Dispatcher) error {
		return d.SyncTime(ctx)
	})
}
