// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package migrate is the legacy-log importer: it walks a directory tree of
// `channel.txt[.gz]` files, parses every line through internal/ircmsg, and
// writes the result into a store.BulkInserter, one task per
// (channel, year, month), bounded by a configurable parallelism limit.
package migrate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// dayFile is one day's log file on disk, already resolved to whichever of
// channel.txt / channel.txt.gz exists (preferring the uncompressed form).
type dayFile struct {
	Channel string
	Year    int
	Month   int
	Day     int
	Path    string
	Gzip    bool
	Size    int64
}

// monthKey groups dayFiles into the (channel, year, month) unit the
// migration engine schedules one task per, per spec.md §4.5 step 4.
type monthKey struct {
	Channel string
	Year    int
	Month   int
}

// discover walks root, returning every resolvable day file grouped by
// (channel, year, month), filtered by allowlist if non-empty. File and
// directory reads here are blocking and meant to run off the main
// goroutine pool — callers invoke discover once, up front, on whatever
// goroutine kicked off the migration.
func discover(root string, allowlist []string) (map[monthKey][]dayFile, int64, error) {
	allowed := map[string]bool{}
	for _, id := range allowlist {
		allowed[id] = true
	}

	channels, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("migrate: read root %s: %w", root, err)
	}

	groups := map[monthKey][]dayFile{}
	var totalBytes int64

	for _, ch := range channels {
		if !ch.IsDir() {
			continue
		}
		channelID := ch.Name()
		if len(allowed) > 0 && !allowed[channelID] {
			continue
		}

		channelDir := filepath.Join(root, channelID)
		years, err := os.ReadDir(channelDir)
		if err != nil {
			return nil, 0, fmt.Errorf("migrate: read channel dir %s: %w", channelDir, err)
		}

		for _, y := range years {
			year, err := strconv.Atoi(y.Name())
			if !y.IsDir() || err != nil {
				continue
			}
			yearDir := filepath.Join(channelDir, y.Name())
			months, err := os.ReadDir(yearDir)
			if err != nil {
				return nil, 0, fmt.Errorf("migrate: read year dir %s: %w", yearDir, err)
			}

			for _, mo := range months {
				month, err := strconv.Atoi(mo.Name())
				if !mo.IsDir() || err != nil {
					continue
				}
				monthDir := filepath.Join(yearDir, mo.Name())
				days, err := os.ReadDir(monthDir)
				if err != nil {
					return nil, 0, fmt.Errorf("migrate: read month dir %s: %w", monthDir, err)
				}

				for _, d := range days {
					day, err := strconv.Atoi(d.Name())
					if !d.IsDir() || err != nil {
						continue
					}
					dayDir := filepath.Join(monthDir, d.Name())
					df, ok, err := resolveDayFile(dayDir, channelID, year, month, day)
					if err != nil {
						return nil, 0, err
					}
					if !ok {
						continue
					}
					key := monthKey{Channel: channelID, Year: year, Month: month}
					groups[key] = append(groups[key], df)
					totalBytes += df.Size
				}
			}
		}
	}

	for key := range groups {
		days := groups[key]
		sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
		groups[key] = days
	}

	return groups, totalBytes, nil
}

// resolveDayFile prefers channel.txt over channel.txt.gz, per spec.md §4.5
// step 2.
func resolveDayFile(dayDir, channel string, year, month, day int) (dayFile, bool, error) {
	plain := filepath.Join(dayDir, "channel.txt")
	if fi, err := os.Stat(plain); err == nil {
		return dayFile{Channel: channel, Year: year, Month: month, Day: day, Path: plain, Size: fi.Size()}, true, nil
	} else if !os.IsNotExist(err) {
		return dayFile{}, false, fmt.Errorf("migrate: stat %s: %w", plain, err)
	}

	gz := filepath.Join(dayDir, "channel.txt.gz")
	if fi, err := os.Stat(gz); err == nil {
		return dayFile{Channel: channel, Year: year, Month: month, Day: day, Path: gz, Gzip: true, Size: fi.Size()}, true, nil
	} else if !os.IsNotExist(err) {
		return dayFile{}, false, fmt.Errorf("migrate: stat %s: %w", gz, err)
	}

	return dayFile{}, false, nil
}

// openLines opens df for line-oriented reading, transparently
// decompressing through klauspost/compress/gzip when df.Gzip is set. The
// returned closer must be called once the scanner is drained.
func openLines(df dayFile) (*bufio.Scanner, io.Closer, error) {
	f, err := os.Open(df.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: open %s: %w", df.Path, err)
	}

	var r io.Reader = f
	closer := io.Closer(f)
	if df.Gzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("migrate: open gzip %s: %w", df.Path, err)
		}
		r = gz
		closer = multiCloser{gz, f}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return scanner, closer, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for _, c := range m {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
