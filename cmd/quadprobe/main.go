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

// Command quadprobe replays a script of table operations and prints the
// resulting slot layout. It is a diagnostic aid for watching probe chains,
// tombstones and growth.
//
//	$ printf 'insert 1 4 17 22\nremove 4\nprint\n' | quadprobe -capacity 5
//	- 1 22 17 x - -
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/quadprobe"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		capacity   = flag.Int("capacity", 7, "initial table capacity, rounded up to a prime")
		loadFactor = flag.Float64("load-factor", quadprobe.DefaultLoadFactor, "occupancy in (0, 1) at which the table grows")
		script     = flag.String("script", "", "file of commands to replay (default stdin)")
		verbose    = flag.Bool("v", false, "log every operation")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(log, *capacity, *loadFactor, *script); err != nil {
		log.WithError(err).Error("replay failed")
		os.Exit(1)
	}
}

// run replays the script at path, or stdin if path is empty, against a new
// table. Files it opens are closed before it returns.
func run(log logrus.FieldLogger, capacity int, loadFactor float64, path string) error {
	if !(loadFactor > 0 && loadFactor < 1) {
		return fmt.Errorf("load factor %v must be in (0, 1)", loadFactor)
	}

	in := io.Reader(os.Stdin)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		in = f
	}

	r := &runner{
		table: quadprobe.New(capacity, quadprobe.WithLoadFactor(loadFactor)),
		log:   log,
		out:   os.Stdout,
	}
	return r.run(in)
}
