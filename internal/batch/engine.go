// internal/batch/engine.go
//
// Package batch implements the grouped batch-read / batch-write algorithm
// that is this gateway's core engineering content (spec §4.8): given a tag
// set, group by data block, compute the minimal covering byte range, issue
// one protocol transaction per block, and scatter/gather values through the
// codec. Reads drive each tag's edge monitor; writes are applied as
// read-modify-write so sibling bytes (and sibling bits) survive.
package batch

import (
	"fmt"
	"log"
	"sort"

	"s7gateway/internal/tag"
)

// rangeReader/rangeWriter narrow Session to what this package calls,
// keeping the engine testable against a fake session.
type rangeReader interface {
	ReadRange(db, offset, length int) ([]byte, error)
}

type rangeWriter interface {
	WriteRange(db, offset int, buf []byte) error
}

type rangeReadWriter interface {
	rangeReader
	rangeWriter
}

// ReadResult is one tag's outcome from a read sweep: either a decoded value
// or an error, never both.
type ReadResult struct {
	Value interface{}
	Err   error
}

// Engine runs read sweeps and write flushes against one Session (normally
// the PLC's async lane; the sync-lane single-tag path in the API handlers
// can also drive it for ad-hoc batch requests).
type Engine struct {
	sess rangeReadWriter
}

// New creates an Engine bound to sess (normally a *session.Session).
func New(sess rangeReadWriter) *Engine {
	return &Engine{sess: sess}
}

type tagGroup struct {
	db    int
	tags  []*tag.Tag
	start int
	size  int
}

// groupByDB groups tags by db_number and computes each group's minimal
// covering range: start = min(start_offset), end = max(start_offset +
// effective_size - 1) (spec §4.8 step 1-2; Testable Property 3).
func groupByDB(tags []*tag.Tag) []*tagGroup {
	byDB := make(map[int]*tagGroup)
	order := make([]int, 0)
	for _, t := range tags {
		db := t.Decl.DBNumber
		g, ok := byDB[db]
		if !ok {
			g = &tagGroup{db: db}
			byDB[db] = g
			order = append(order, db)
		}
		g.tags = append(g.tags, t)
	}

	groups := make([]*tagGroup, 0, len(order))
	for _, db := range order {
		g := byDB[db]
		start := g.tags[0].Decl.StartOffset
		end := g.tags[0].Decl.StartOffset + g.tags[0].Decl.EffectiveSize() - 1
		for _, t := range g.tags[1:] {
			if t.Decl.StartOffset < start {
				start = t.Decl.StartOffset
			}
			tEnd := t.Decl.StartOffset + t.Decl.EffectiveSize() - 1
			if tEnd > end {
				end = tEnd
			}
		}
		g.start = start
		g.size = end - start + 1
		groups = append(groups, g)
	}
	return groups
}

// ReadAll performs one read sweep over tags: one read_range per data block,
// decoded and scattered to each tag, driving its edge monitor. A failed
// block read marks every tag in that group with the read's error; a
// per-tag decode failure is logged and that tag is left unchanged without
// aborting the rest of the block (spec §4.8 steps 5-6).
func (e *Engine) ReadAll(tags []*tag.Tag) map[string]ReadResult {
	results := make(map[string]ReadResult, len(tags))
	if len(tags) == 0 {
		return results
	}

	for _, g := range groupByDB(tags) {
		buf, err := e.sess.ReadRange(g.db, g.start, g.size)
		if err != nil {
			for _, t := range g.tags {
				results[t.Decl.TagPath] = ReadResult{Err: err}
			}
			continue
		}

		for _, t := range g.tags {
			rel := t.Decl.StartOffset - g.start
			effSize := t.Decl.EffectiveSize()
			if rel < 0 || rel+effSize > len(buf) {
				err := fmt.Errorf("tag %q fora dos limites do bloco lido", t.Decl.TagPath)
				log.Printf("batch: %v", err)
				results[t.Decl.TagPath] = ReadResult{Err: err}
				continue
			}
			sub := buf[rel : rel+effSize]
			value, err := tag.Decode(t.Decl.DataType, sub, t.Decl.Size, t.Decl.BitIndex)
			if err != nil {
				log.Printf("batch: decodificação da tag %q falhou: %v", t.Decl.TagPath, err)
				results[t.Decl.TagPath] = ReadResult{Err: err}
				continue
			}
			t.SetCurrentValue(value)
			results[t.Decl.TagPath] = ReadResult{Value: value}
		}
	}

	return results
}

// FlushPending applies every pending write among tags as a read-modify-write
// per data block (spec §4.8's write flush). Ties on overlapping bytes are
// broken by applying tags in ascending start_offset order, so the tag with
// the higher start_offset is patched last and wins for shared bytes.
func (e *Engine) FlushPending(tags []*tag.Tag) map[string]error {
	results := make(map[string]error)

	pending := make([]*tag.Tag, 0, len(tags))
	for _, t := range tags {
		if _, ok := t.PendingWrite(); ok {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return results
	}

	for _, g := range groupByDB(pending) {
		sort.Slice(g.tags, func(i, j int) bool {
			return g.tags[i].Decl.StartOffset < g.tags[j].Decl.StartOffset
		})

		orig, err := e.sess.ReadRange(g.db, g.start, g.size)
		if err != nil {
			for _, t := range g.tags {
				results[t.Decl.TagPath] = err
			}
			continue
		}

		patched := make([]byte, len(orig))
		copy(patched, orig)

		encodeErrs := make(map[string]error)
		for _, t := range g.tags {
			value, _ := t.PendingWrite()
			rel := t.Decl.StartOffset - g.start
			effSize := t.Decl.EffectiveSize()
			if rel < 0 || rel+effSize > len(patched) {
				encodeErrs[t.Decl.TagPath] = fmt.Errorf("tag %q fora dos limites do bloco", t.Decl.TagPath)
				continue
			}
			sub := patched[rel : rel+effSize]
			if err := tag.Encode(t.Decl.DataType, sub, t.Decl.Size, t.Decl.BitIndex, value); err != nil {
				encodeErrs[t.Decl.TagPath] = err
			}
		}

		if len(encodeErrs) > 0 {
			for path, err := range encodeErrs {
				results[path] = err
			}
			// Tags that encoded fine still need a result; the block write
			// is skipped entirely since patched may be inconsistent.
			for _, t := range g.tags {
				if _, already := results[t.Decl.TagPath]; !already {
					results[t.Decl.TagPath] = fmt.Errorf("bloco não escrito: outra tag no mesmo bloco falhou ao codificar")
				}
			}
			continue
		}

		if err := e.sess.WriteRange(g.db, g.start, patched); err != nil {
			for _, t := range g.tags {
				results[t.Decl.TagPath] = err
			}
			continue
		}

		for _, t := range g.tags {
			t.CommitPendingWrite()
			results[t.Decl.TagPath] = nil
		}
	}

	return results
}
