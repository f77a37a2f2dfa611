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

package prime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// sieve returns a table of primality for [0, n).
func sieve(n int) []bool {
	composite := make([]bool, n)
	for i := 2; i*i < n; i++ {
		if composite[i] {
			continue
		}
		for j := i * i; j < n; j += i {
			composite[j] = true
		}
	}
	primes := make([]bool, n)
	for i := 2; i < n; i++ {
		primes[i] = !composite[i]
	}
	return primes
}

func TestIsPrime(t *testing.T) {
	for _, n := range []int{math.MinInt, -7, -1, 0, 1} {
		require.False(t, IsPrime(n), "%d", n)
	}

	expected := sieve(10000)
	for n := range expected {
		require.Equal(t, expected[n], IsPrime(n), "%d", n)
	}

	// Squares of primes of the form 6k±1 are the cases that break an
	// off-by-one in the loop bound.
	for _, n := range []int{25, 49, 121, 169, 289, 361, 529, 841, 961} {
		require.False(t, IsPrime(n), "%d", n)
	}

	require.True(t, IsPrime(2147483647))
	require.False(t, IsPrime(2147483647*3))
}

func TestNext(t *testing.T) {
	testCases := []struct {
		n        int
		expected int
	}{
		{-5, 2},
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 3},
		{4, 5},
		{5, 5},
		{8, 11},
		{14, 17},
		{24, 29},
		{100, 101},
		{1000, 1009},
		{7920, 7927},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			require.EqualValues(t, c.expected, Next(c.n))
		})
	}
}

func TestNextDoubling(t *testing.T) {
	// Growing by Next(2*c) from a prime c always at least doubles and lands
	// on a prime.
	c := Next(1)
	for i := 0; i < 25; i++ {
		n := Next(2 * c)
		require.True(t, IsPrime(n))
		require.GreaterOrEqual(t, n, 2*c)
		c = n
	}
}
