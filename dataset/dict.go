// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

// FreqDict maps user or item ids to dense matrix indices. It also counts the
// interactions observed for each id.
type FreqDict struct {
	si  map[string]int
	is  []string
	cnt []int
}

func NewFreqDict() *FreqDict {
	return &FreqDict{si: map[string]int{}}
}

func (d *FreqDict) Count() int {
	return len(d.is)
}

// Register returns the index of s, assigning the next index if absent. The
// frequency is not changed.
func (d *FreqDict) Register(s string) int {
	if y, ok := d.si[s]; ok {
		return y
	}
	y := len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 0)
	return y
}

// Add registers s and counts one more observation of it.
func (d *FreqDict) Add(s string) int {
	y := d.Register(s)
	d.cnt[y]++
	return y
}

// Id returns the index of s or -1.
func (d *FreqDict) Id(s string) int {
	if y, ok := d.si[s]; ok {
		return y
	}
	return -1
}

func (d *FreqDict) String(id int) (string, bool) {
	if id < 0 || id >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

// Freq returns the number of observations of an index.
func (d *FreqDict) Freq(id int) int {
	if id < 0 || id >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

// Strings returns ids in index order.
func (d *FreqDict) Strings() []string {
	return d.is
}
