package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/keks/chainfs/fuse"
	"github.com/keks/chainfs/volume"
)

func (a *app) mount(args []string) error {
	var (
		flags      imageFlags
		image      string
		debug      bool
		allowOther bool
		fsName     string
	)

	fs := pflag.NewFlagSet("mount", pflag.ContinueOnError)
	flags.add(fs)
	fs.StringVar(&image, "image", "", "image file (default from config, .disk)")
	fs.BoolVar(&debug, "debug", false, "log every FUSE request")
	fs.BoolVar(&allowOther, "allow-other", false, "let other users access the mount")
	fs.StringVar(&fsName, "fs-name", "", "source name shown in the mount table")
	if err := a.parseFlags(fs, "mount [--config FILE] [--image IMAGE] [--debug] [--allow-other] [MOUNTPOINT]", args); err != nil {
		return ignoreHelp(err)
	}

	pos, err := wantArgs(fs, 0, 1)
	if err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if fs.Changed("image") {
		cfg.Image = image
	}
	if fs.Changed("debug") {
		cfg.Mount.Debug = debug
	}
	if fs.Changed("allow-other") {
		cfg.Mount.AllowOther = allowOther
	}
	if fs.Changed("fs-name") {
		cfg.Mount.FsName = fsName
	}
	if len(pos) == 1 {
		cfg.Mount.Mountpoint = pos[0]
	}
	if cfg.Mount.Mountpoint == "" {
		return fmt.Errorf("mount: no mountpoint given")
	}

	logger, err := cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return err
	}

	vol, err := volume.OpenFile(cfg.Image, volume.Options{BlockSize: cfg.BlockSize, Logger: logger})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := fuse.Mount(fuse.Options{
		Mountpoint: cfg.Mount.Mountpoint,
		Volume:     vol,
		AllowOther: cfg.Mount.AllowOther,
		Debug:      cfg.Mount.Debug,
		FsName:     cfg.Mount.FsName,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// Wait returns once the kernel drops the mount, which also happens
	// on an external fusermount -u.
	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("filesystem unmounted externally", "mountpoint", cfg.Mount.Mountpoint)
		return nil
	case <-ctx.Done():
	}

	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", cfg.Mount.Mountpoint, err)
	}
	<-done

	logger.Info("filesystem unmounted", "mountpoint", cfg.Mount.Mountpoint)
	return nil
}
