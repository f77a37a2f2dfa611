// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/quadprobe"
	"github.com/sirupsen/logrus"
)

// runner replays a script of commands against a table. Each line holds one
// command:
//
//	insert <key>...   add keys
//	remove <key>...   delete keys
//	search <key>...   print the slot of each key
//	print             print the slots, "-" empty, "x" tombstone
//	stats             print the counters
//	clear             drop every key
//
// Blank lines and lines starting with '#' are ignored. Outcomes such as a
// duplicate insert are logged and do not stop the replay; malformed commands
// do.
type runner struct {
	table *quadprobe.Table
	log   logrus.FieldLogger
	out   io.Writer
}

func (r *runner) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := r.exec(text); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"len":        r.table.Len(),
		"capacity":   r.table.Capacity(),
		"tombstones": r.table.Tombstones(),
	}).Info("replay complete")
	return nil
}

func (r *runner) exec(cmd string) error {
	fields := strings.Fields(cmd)
	op, args := fields[0], fields[1:]

	switch op {
	case "insert", "remove", "search":
		if len(args) == 0 {
			return fmt.Errorf("%s: missing key", op)
		}
		keys := make([]int, len(args))
		for i, arg := range args {
			key, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			keys[i] = key
		}
		for _, key := range keys {
			r.apply(op, key)
		}
	case "print":
		fmt.Fprintln(r.out, r.table)
	case "stats":
		fmt.Fprintf(r.out, "len=%d capacity=%d tombstones=%d load=%.3f\n",
			r.table.Len(), r.table.Capacity(), r.table.Tombstones(), r.table.LoadFactor())
	case "clear":
		r.table.Clear()
		r.log.WithField("op", op).Debug("cleared")
	default:
		return fmt.Errorf("unknown command %q", op)
	}
	return nil
}

func (r *runner) apply(op string, key int) {
	entry := r.log.WithFields(logrus.Fields{"op": op, "key": key})

	switch op {
	case "insert":
		capacity := r.table.Capacity()
		err := r.table.Insert(key)
		switch {
		case err == nil:
			if c := r.table.Capacity(); c != capacity {
				entry.WithFields(logrus.Fields{"from": capacity, "to": c}).Info("inserted; table grew")
			} else {
				entry.Debug("inserted")
			}
		case errors.Is(err, quadprobe.ErrProbeLimitExceeded):
			entry.WithError(err).Error("insert failed")
		default:
			entry.WithError(err).Warn("insert rejected")
		}

	case "remove":
		if err := r.table.Remove(key); err != nil {
			entry.WithError(err).Warn("remove rejected")
		} else {
			entry.Debug("removed")
		}

	case "search":
		if i, ok := r.table.Search(key); ok {
			fmt.Fprintf(r.out, "%d: %d\n", key, i)
			entry.WithField("index", i).Debug("found")
		} else {
			fmt.Fprintf(r.out, "%d: not found\n", key)
			entry.Debug("not found")
		}
	}
}
