// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the tunable regulation thresholds from the config
// file. Only Thresholds reload; everything else requires a restart.
//
// # Thread Safety
//
// Thresholds() is safe from any goroutine; the value swaps atomically
// after a successful reload.
type Watcher struct {
	path       string
	thresholds atomic.Pointer[Thresholds]
	watcher    *fsnotify.Watcher
	debounce   time.Duration
}

// NewWatcher seeds the watcher with the already-loaded configuration.
// path may be empty; Thresholds() then always returns the seed values.
func NewWatcher(path string, seed Thresholds) *Watcher {
	w := &Watcher{path: path, debounce: 200 * time.Millisecond}
	w.thresholds.Store(&seed)
	return w
}

// Thresholds returns the current threshold set.
func (w *Watcher) Thresholds() Thresholds {
	return *w.thresholds.Load()
}

// Start begins watching until ctx is cancelled. No-op without a path.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	// Watch the directory; editors replace files rather than writing in
	// place, which drops the watch on the inode.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("Config reload failed, keeping previous thresholds", "error", err)
		return
	}
	t := cfg.Thresholds
	w.thresholds.Store(&t)
	slog.Info("Reloaded regulation thresholds",
		"slow_down_below", t.SlowDownBelow,
		"clarify_below", t.ClarifyBelow,
		"contradiction_escalation", t.ContradictionEscalation)
}
