package batch

import (
	"errors"
	"testing"

	"s7gateway/internal/monitor"
	"s7gateway/internal/tag"
)

type fakeSession struct {
	data         []byte
	readErr      error
	writeErr     error
	reads        []readCall
	writes       []writeCall
}

type readCall struct{ db, offset, length int }
type writeCall struct {
	db, offset int
	buf        []byte
}

func (f *fakeSession) ReadRange(db, offset, length int) ([]byte, error) {
	f.reads = append(f.reads, readCall{db, offset, length})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]byte, length)
	copy(out, f.data[offset:offset+length])
	return out, nil
}

func (f *fakeSession) WriteRange(db, offset int, buf []byte) error {
	f.writes = append(f.writes, writeCall{db, offset, append([]byte(nil), buf...)})
	if f.writeErr != nil {
		return f.writeErr
	}
	copy(f.data[offset:offset+len(buf)], buf)
	return nil
}

func newTag(t *testing.T, pool *monitor.Pool, decl tag.Declaration) *tag.Tag {
	t.Helper()
	tg, err := tag.New(decl, pool)
	if err != nil {
		t.Fatalf("tag.New(%s): %v", decl.TagPath, err)
	}
	return tg
}

func newPool(t *testing.T) *monitor.Pool {
	t.Helper()
	p := monitor.NewPool(4, 16)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func TestReadAllCoalescesToOneRangePerBlock(t *testing.T) {
	// S2: three tags in db=101 at offsets 0 (bool), 2 (int), 4 (real) ->
	// exactly one read_range(101, 0, 8).
	pool := newPool(t)
	tags := []*tag.Tag{
		newTag(t, pool, tag.Declaration{TagPath: "bool1", DataType: tag.Bool, Size: 1, BitIndex: 0, DBNumber: 101, StartOffset: 0}),
		newTag(t, pool, tag.Declaration{TagPath: "int1", DataType: tag.Int, Size: 2, DBNumber: 101, StartOffset: 2}),
		newTag(t, pool, tag.Declaration{TagPath: "real1", DataType: tag.Real, Size: 4, DBNumber: 101, StartOffset: 4}),
	}

	fs := &fakeSession{data: make([]byte, 8)}
	e := New(fs)
	e.ReadAll(tags)

	if len(fs.reads) != 1 {
		t.Fatalf("expected exactly one read_range call, got %d: %v", len(fs.reads), fs.reads)
	}
	got := fs.reads[0]
	if got.db != 101 || got.offset != 0 || got.length != 8 {
		t.Fatalf("expected read_range(101, 0, 8), got read_range(%d, %d, %d)", got.db, got.offset, got.length)
	}
}

func TestReadAllDecodesAndUpdatesTags(t *testing.T) {
	pool := newPool(t)
	boolTag := newTag(t, pool, tag.Declaration{TagPath: "Motor1_Status", DataType: tag.Bool, Size: 1, BitIndex: 0, DBNumber: 101, StartOffset: 0, DefaultValue: false})

	fs := &fakeSession{data: []byte{0x01}}
	e := New(fs)
	results := e.ReadAll([]*tag.Tag{boolTag})

	res, ok := results["Motor1_Status"]
	if !ok || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Value != true {
		t.Fatalf("expected decoded value true, got %v", res.Value)
	}
	if boolTag.CurrentValue() != true {
		t.Fatalf("expected current_value updated to true, got %v", boolTag.CurrentValue())
	}
}

func TestReadAllFailedBlockMarksAllTagsWithError(t *testing.T) {
	pool := newPool(t)
	tags := []*tag.Tag{
		newTag(t, pool, tag.Declaration{TagPath: "a", DataType: tag.Int, Size: 2, DBNumber: 101, StartOffset: 0, DefaultValue: int16(7)}),
		newTag(t, pool, tag.Declaration{TagPath: "b", DataType: tag.Int, Size: 2, DBNumber: 101, StartOffset: 2, DefaultValue: int16(8)}),
	}
	fs := &fakeSession{data: make([]byte, 4), readErr: errors.New("plc offline")}
	e := New(fs)
	results := e.ReadAll(tags)

	for _, path := range []string{"a", "b"} {
		if results[path].Err == nil {
			t.Fatalf("expected error result for %s", path)
		}
	}
	// tags must be left unchanged, not corrupted
	if tags[0].CurrentValue() != int16(7) {
		t.Fatalf("tag a should be left unchanged on block failure, got %v", tags[0].CurrentValue())
	}
}

func TestFlushPendingPreservesSiblingBits(t *testing.T) {
	// S3: byte 0 initially 0b00000010 (bit 1 set). Stage Motor1_Status=true
	// at bit 0. Flush must write 0x03, leaving bit 1 set.
	pool := newPool(t)
	motor := newTag(t, pool, tag.Declaration{TagPath: "Motor1_Status", DataType: tag.Bool, Size: 1, BitIndex: 0, DBNumber: 101, StartOffset: 0, DefaultValue: false})
	motor.StagePendingWrite(true)

	fs := &fakeSession{data: []byte{0b00000010}}
	e := New(fs)
	results := e.FlushPending([]*tag.Tag{motor})

	if err := results["Motor1_Status"]; err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fs.writes) != 1 {
		t.Fatalf("expected exactly one write_range call, got %d", len(fs.writes))
	}
	got := fs.writes[0].buf[0]
	if got != 0b00000011 {
		t.Fatalf("expected 0b00000011, got %08b", got)
	}
	if motor.CurrentValue() != true {
		t.Fatalf("expected current_value committed to true, got %v", motor.CurrentValue())
	}
	if _, pending := motor.PendingWrite(); pending {
		t.Fatalf("expected pending slot cleared after successful flush")
	}
}

func TestFlushPendingStringRoundTrip(t *testing.T) {
	// S4: db=102, off=0, size=20, string. Stage "机器A" (GBK: 5 bytes).
	pool := newPool(t)
	name := newTag(t, pool, tag.Declaration{TagPath: "Machine_Name", DataType: tag.String, Size: 20, DBNumber: 102, StartOffset: 0, DefaultValue: ""})
	name.StagePendingWrite("机器A")

	fs := &fakeSession{data: make([]byte, 22)}
	e := New(fs)
	results := e.FlushPending([]*tag.Tag{name})
	if err := results["Machine_Name"]; err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	buf := fs.writes[0].buf
	if buf[0] != 20 {
		t.Fatalf("expected max length header 20, got %d", buf[0])
	}
	if buf[1] != 5 {
		t.Fatalf("expected actual length header 5, got %d", buf[1])
	}
	for i := 7; i < 22; i++ {
		if buf[i] != 0 {
			t.Fatalf("expected zero padding at byte %d, got %d", i, buf[i])
		}
	}

	read := e.ReadAll([]*tag.Tag{name})
	if read["Machine_Name"].Value != "机器A" {
		t.Fatalf("expected round-trip value 机器A, got %v", read["Machine_Name"].Value)
	}
}

func TestFlushPendingNoopWhenNothingStaged(t *testing.T) {
	pool := newPool(t)
	tg := newTag(t, pool, tag.Declaration{TagPath: "Idle", DataType: tag.Int, Size: 2, DBNumber: 101, StartOffset: 0, DefaultValue: int16(0)})

	fs := &fakeSession{data: make([]byte, 2)}
	e := New(fs)
	results := e.FlushPending([]*tag.Tag{tg})

	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
	if len(fs.reads) != 0 || len(fs.writes) != 0 {
		t.Fatalf("expected zero I/O, got %d reads and %d writes", len(fs.reads), len(fs.writes))
	}
}

func TestFlushPendingLeavesPendingOnWriteFailure(t *testing.T) {
	pool := newPool(t)
	tg := newTag(t, pool, tag.Declaration{TagPath: "X", DataType: tag.Int, Size: 2, DBNumber: 101, StartOffset: 0, DefaultValue: int16(0)})
	tg.StagePendingWrite(int16(42))

	fs := &fakeSession{data: make([]byte, 2), writeErr: errors.New("plc busy")}
	e := New(fs)
	results := e.FlushPending([]*tag.Tag{tg})

	if results["X"] == nil {
		t.Fatalf("expected an error result")
	}
	v, ok := tg.PendingWrite()
	if !ok || v != int16(42) {
		t.Fatalf("expected pending write retained for retry, got %v ok=%v", v, ok)
	}
}

func TestFlushPendingSharedByteKeepsBothBits(t *testing.T) {
	// Two bool tags sharing byte 0 at different bits: both pending, both
	// must be reflected since they don't share a bit, i.e. patching the
	// second tag doesn't clobber the first tag's bit in the same byte.
	pool := newPool(t)
	bit0 := newTag(t, pool, tag.Declaration{TagPath: "bit0", DataType: tag.Bool, Size: 1, BitIndex: 0, DBNumber: 101, StartOffset: 0, DefaultValue: false})
	bit1 := newTag(t, pool, tag.Declaration{TagPath: "bit1", DataType: tag.Bool, Size: 1, BitIndex: 1, DBNumber: 101, StartOffset: 0, DefaultValue: false})
	bit0.StagePendingWrite(true)
	bit1.StagePendingWrite(true)

	fs := &fakeSession{data: []byte{0}}
	e := New(fs)
	results := e.FlushPending([]*tag.Tag{bit0, bit1})

	if results["bit0"] != nil || results["bit1"] != nil {
		t.Fatalf("unexpected errors: %v %v", results["bit0"], results["bit1"])
	}
	if fs.writes[0].buf[0] != 0b00000011 {
		t.Fatalf("expected both bits set, got %08b", fs.writes[0].buf[0])
	}
}
