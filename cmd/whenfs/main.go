package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/whenfs/whenfs/internal/cache"
	"github.com/whenfs/whenfs/internal/credentials"
	"github.com/whenfs/whenfs/internal/fuse"
	"github.com/whenfs/whenfs/internal/logging"
	"github.com/whenfs/whenfs/internal/storage/factory"
)

// Exit codes distinguish how a mount attempt ended.
const (
	exitOK             = 0
	exitArgError       = 1
	exitAuthFailure    = 2
	exitMountFailure   = 3
	exitRuntimeFailure = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		mountpoint = flag.String("mount", "", "mountpoint directory (required)")
		secret     = flag.String("secret", "", "path to a Google OAuth client-secret JSON file (required for --backend calendar)")
		volumeName = flag.String("name", "whenfs", "calendar summary used when creating a new calendar")
		calendarID = flag.String("calendar", "", "existing Google Calendar id to use as the backing store (empty creates a new one)")
		rootEvent  = flag.String("root-event", "", "root record id to recover an existing volume (empty bootstraps a new one)")
		logLevel   = flag.String("log-level", "info", "debug, info, warn, or error")
		backend    = flag.String("backend", "calendar", "storage backend: calendar or memory")
	)
	flag.Parse()

	logging.SetLevel(logging.ParseLevel(*logLevel))

	if *mountpoint == "" {
		fmt.Fprintln(os.Stderr, "whenfs: --mount is required")
		return exitArgError
	}
	backendType := factory.BackendType(*backend)
	if backendType != factory.BackendTypeCalendar && backendType != factory.BackendTypeMemory {
		fmt.Fprintf(os.Stderr, "whenfs: unknown --backend %q\n", *backend)
		return exitArgError
	}
	if backendType == factory.BackendTypeCalendar && *secret == "" {
		fmt.Fprintln(os.Stderr, "whenfs: --secret is required for --backend calendar")
		return exitArgError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("received shutdown signal, unmounting")
		cancel()
	}()

	cfg := factory.Config{
		Type:             backendType,
		CalendarID:       *calendarID,
		VolumeName:       *volumeName,
		MemoryCalendarID: *calendarID,
	}
	if backendType == factory.BackendTypeCalendar {
		creds, err := credentials.Load(*secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "whenfs: loading credentials: %v\n", err)
			return exitAuthFailure
		}
		client, err := creds.Client(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "whenfs: authenticating: %v\n", err)
			return exitAuthFailure
		}
		cfg.HTTPClient = client
	}

	store, err := factory.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "whenfs: %v\n", err)
		return exitAuthFailure
	}

	var volume *cache.Cache
	if *rootEvent != "" {
		volume, err = cache.OpenVolume(ctx, store, *rootEvent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "whenfs: recovering volume: %v\n", err)
			return exitMountFailure
		}
	} else {
		volume = cache.NewVolume(store, cache.DefaultBlockSize)
	}

	logging.Info("recovery file available at /.whenfs-recovery (calendar %s)", volume.CalendarID())

	mountErr := fuse.Mount(ctx, *mountpoint, volume)

	closeErr := volume.Close(context.Background())
	if mountErr != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "whenfs: mount failed: %v\n", mountErr)
		return exitMountFailure
	}
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "whenfs: draining volume on shutdown: %v\n", closeErr)
		return exitRuntimeFailure
	}
	return exitOK
}
