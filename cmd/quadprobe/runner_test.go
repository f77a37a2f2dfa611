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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/quadprobe"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestRunner(capacity int) (*runner, *strings.Builder, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	var out strings.Builder
	r := &runner{
		table: quadprobe.New(capacity),
		log:   log,
		out:   &out,
	}
	return r, &out, hook
}

func TestRunnerWalkthrough(t *testing.T) {
	r, out, hook := newTestRunner(5)

	script := `
# keys 1 and 22 share home slot 1
insert 1 4 17 22
print
remove 4
search 4 17
print
stats
`
	require.NoError(t, r.run(strings.NewReader(script)))
	require.Equal(t, strings.Join([]string{
		"- 1 22 17 4 - -",
		"4: not found",
		"17: 3",
		"- 1 22 17 x - -",
		"len=3 capacity=7 tombstones=1 load=0.429",
		"",
	}, "\n"), out.String())

	last := hook.LastEntry()
	require.Equal(t, "replay complete", last.Message)
	require.Equal(t, logrus.InfoLevel, last.Level)
	require.EqualValues(t, 3, last.Data["len"])
}

func TestRunnerOutcomes(t *testing.T) {
	r, _, hook := newTestRunner(7)

	// 7 collides with 0, 1, 2 and 4 on every reachable slot.
	script := `
insert 0 1 2 4
insert 0
insert 7
remove 9
`
	require.NoError(t, r.run(strings.NewReader(script)))

	var warn, errs []*logrus.Entry
	for _, e := range hook.AllEntries() {
		switch e.Level {
		case logrus.WarnLevel:
			warn = append(warn, e)
		case logrus.ErrorLevel:
			errs = append(errs, e)
		}
	}

	require.Len(t, warn, 2)
	require.Equal(t, "insert rejected", warn[0].Message)
	require.ErrorIs(t, warn[0].Data[logrus.ErrorKey].(error), quadprobe.ErrDuplicateKey)
	require.Equal(t, "remove rejected", warn[1].Message)
	require.ErrorIs(t, warn[1].Data[logrus.ErrorKey].(error), quadprobe.ErrNotFound)

	require.Len(t, errs, 1)
	require.Equal(t, "insert failed", errs[0].Message)
	require.EqualValues(t, 7, errs[0].Data["key"])
	require.ErrorIs(t, errs[0].Data[logrus.ErrorKey].(error), quadprobe.ErrProbeLimitExceeded)

	require.EqualValues(t, 4, r.table.Len())
}

func TestRunnerGrowth(t *testing.T) {
	r, out, hook := newTestRunner(5)

	require.NoError(t, r.run(strings.NewReader("insert 1 2 3 4 5 6\nstats\nclear\nstats\n")))
	require.Equal(t,
		"len=6 capacity=17 tombstones=0 load=0.353\n"+
			"len=0 capacity=17 tombstones=0 load=0.000\n",
		out.String())

	var grew *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "inserted; table grew" {
			grew = e
		}
	}
	require.NotNil(t, grew)
	require.EqualValues(t, 7, grew.Data["from"])
	require.EqualValues(t, 17, grew.Data["to"])
	require.EqualValues(t, 6, grew.Data["key"])
}

func TestRunnerErrors(t *testing.T) {
	testCases := []struct {
		script   string
		expected string
	}{
		{"insert 1\nfrobnicate\n", `line 2: unknown command "frobnicate"`},
		{"insert\n", "line 1: insert: missing key"},
		{"\n\nsearch x\n", `line 3: search: strconv.Atoi: parsing "x": invalid syntax`},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			r, _, _ := newTestRunner(7)
			err := r.run(strings.NewReader(c.script))
			require.EqualError(t, err, c.expected)
		})
	}

	// A malformed key aborts the whole command.
	r, _, _ := newTestRunner(7)
	require.Error(t, r.run(strings.NewReader("insert 1 x 2\n")))
	require.EqualValues(t, 0, r.table.Len())
}

func TestRunScriptFile(t *testing.T) {
	log, hook := test.NewNullLogger()

	path := filepath.Join(t.TempDir(), "script")
	require.NoError(t, os.WriteFile(path, []byte("insert 1 2 3\n"), 0o644))
	require.NoError(t, run(log, 7, quadprobe.DefaultLoadFactor, path))
	require.Equal(t, "replay complete", hook.LastEntry().Message)
	require.EqualValues(t, 3, hook.LastEntry().Data["len"])

	err := run(log, 7, quadprobe.DefaultLoadFactor, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.EqualError(t, run(log, 7, 1.5, path), "load factor 1.5 must be in (0, 1)")

	// A replay error is returned rather than exiting.
	require.NoError(t, os.WriteFile(path, []byte("bogus\n"), 0o644))
	require.EqualError(t, run(log, 7, quadprobe.DefaultLoadFactor, path), `line 1: unknown command "bogus"`)
}
