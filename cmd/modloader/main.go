// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// The mod loader injects the mods directory into the game's archive set
// and optionally launches the game.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	resources "github.com/atlanmod/resources"
	"github.com/atlanmod/resources/log"
)

const logPath = "modloader_log.txt"

var (
	verbose      bool
	noLaunch     bool
	forceLoad    bool
	resetVanilla bool
	neverPatch   bool
	noExitTimer  bool
	gameDir      string
)

func flagsFromArgs() resources.InjectFlag {
	flags := resources.InjectFlag(0)
	if verbose {
		flags |= resources.FlagVerbose
	}
	if noLaunch {
		flags |= resources.FlagNoLaunch
	}
	if forceLoad {
		flags |= resources.FlagForceLoad
	}
	if resetVanilla {
		flags |= resources.FlagResetVanilla
	}
	if neverPatch {
		flags |= resources.FlagNeverPatch
	}
	if noExitTimer {
		flags |= resources.FlagNoExitTimer
	}
	return flags
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "modloader",
		Short: "Load mods into the game's resource archives",
		Run: func(cmd *cobra.Command, args []string) {
			runLoader()
		},
	}
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.Flags().BoolVar(&noLaunch, "nolaunch", false, "do not launch the game after loading mods")
	rootCmd.Flags().BoolVar(&forceLoad, "forceload", false, "proceed if the executable patcher fails")
	rootCmd.Flags().BoolVar(&resetVanilla, "resetvanilla", false, "restore backups and uninstall all mods")
	rootCmd.Flags().BoolVar(&neverPatch, "neverpatch", false, "never run the executable patcher")
	rootCmd.Flags().BoolVar(&noExitTimer, "noexittimer", false, "exit immediately instead of pausing")
	rootCmd.Flags().StringVar(&gameDir, "gamedir", ".", "game installation folder")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLoader() {
	logFile, err := os.Create(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", logPath, err)
		return
	}
	defer logFile.Close()

	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	logger := log.NewFilter(log.NewStdLogger(io.MultiWriter(os.Stdout, logFile)),
		log.FilterLevel(level))
	helper := log.NewHelper(logger)

	// The boundary keeps backups intact on an unexpected crash: the next
	// run restores vanilla from them.
	defer func() {
		if r := recover(); r != nil {
			helper.Errorf("an unexpected crash has occurred: %v", r)
			helper.Error("this may have left broken game files, re-run the mod loader with no mods to restore them")
		}
		fmt.Printf("Output written to %s\n", logPath)
		if !noExitTimer {
			fmt.Println("This window will close in 10 seconds")
			time.Sleep(10 * time.Second)
		}
	}()

	helper.Info("atlan mod loader")

	flags := flagsFromArgs()

	decomp, err := resources.NewOodleDecompressor()
	if err != nil {
		helper.Errorf("fatal error: %v", err)
		return
	}

	in := resources.NewInjector(resources.InjectOptions{
		GameDir:      gameDir,
		Flags:        flags,
		CacheDir:     ".",
		Decompressor: decomp,
		Logger:       logger,
	})
	if err := in.Run(); err != nil {
		helper.Errorf("fatal error: %v", err)
	}
}
