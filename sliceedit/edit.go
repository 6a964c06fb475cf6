// Copyright 2023 Jesus Ruiz. All rights reserved.
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package sliceedit extends the functionalities of rsc.io/edit to
// implement eficient buffered editing of byte slices.
// It requires a single allocation for many operations.
//
// All positions, including line numbers, refer to the original data.
// Edits are queued and only applied when Bytes or String is called, so
// a position computed before queuing one edit is still valid after it.
package sliceedit

import (
	"bytes"

	"rsc.io/edit"
)

// A Buffer is a queue of edits to apply to a given byte slice.
type Buffer struct {
	ed  edit.Buffer
	buf []byte

	// Offsets of the start of each line in buf, computed lazily
	lineStarts []int
}

// NewBuffer returns a new buffer to accumulate changes to an initial data slice.
// The returned buffer maintains a reference to the data, so the caller must ensure
// the data is not modified until after the Buffer is done being used.
func NewBuffer(buf []byte) *Buffer {
	b := &Buffer{}
	b.buf = buf // Just for our internal queries, we do not modify anything in it
	b.ed = *edit.NewBuffer(buf)
	return b
}

// FindAll finds all non-overlapping instances of item in buf.
func FindAll(buf []byte, item string) []int {
	found := []int{}

	if len(item) == 0 {
		return found
	}

	realOffset := 0

	for {
		i := bytes.Index(buf, []byte(item))
		if i == -1 {
			return found
		}
		found = append(found, i+realOffset)
		buf = buf[i+len(item):]
		realOffset = realOffset + i + len(item)
	}
}

// NumLines returns the number of lines of the original data, counting the
// (possibly empty) text after the last newline as a line.
// An empty buffer has one empty line.
func (b *Buffer) NumLines() int {
	return len(b.starts())
}

// LineStart returns the offset of the first byte of the 0-based line in the original data.
func (b *Buffer) LineStart(line int) (int, bool) {
	starts := b.starts()
	if line < 0 || line >= len(starts) {
		return 0, false
	}
	return starts[line], true
}

func (b *Buffer) starts() []int {
	if b.lineStarts != nil {
		return b.lineStarts
	}
	b.lineStarts = []int{0}
	for i, c := range b.buf {
		if c == '\n' {
			b.lineStarts = append(b.lineStarts, i+1)
		}
	}
	return b.lineStarts
}

// Insert inserts s at pos. Several insertions at the same position
// appear in the order they were queued.
func (b *Buffer) Insert(pos int, s string) {
	b.ed.Insert(pos, s)
}

// InsertLines inserts text as whole lines before the 0-based line of the
// original data. Inserting at NumLines() appends the lines after the last one.
// It returns false if line is out of range.
func (b *Buffer) InsertLines(line int, text string) bool {
	n := b.NumLines()
	switch {
	case line < 0 || line > n:
		return false
	case line == n:
		b.Insert(len(b.buf), "\n"+text)
	default:
		start, _ := b.LineStart(line)
		b.Insert(start, text+"\n")
	}
	return true
}

// Bytes returns a new byte slice containing the original data
// with the queued edits applied.
func (b *Buffer) Bytes() []byte {
	return b.ed.Bytes()
}

// String returns a string containing the original data
// with the queued edits applied.
func (b *Buffer) String() string {
	return string(b.ed.Bytes())
}
