package registry

import (
	"testing"

	"s7gateway/internal/monitor"
	"s7gateway/internal/tag"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	pool := monitor.NewPool(2, 8)
	pool.Start()
	t.Cleanup(pool.Stop)
	return New(pool)
}

func TestCreateAndGet(t *testing.T) {
	r := newRegistry(t)
	decl := tag.Declaration{TagPath: "plc1.Motor1_Status", DataType: tag.Bool, Size: 1, BitIndex: 0, DBNumber: 101}
	if _, err := r.Create(decl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := r.Get("plc1.Motor1_Status")
	if !ok {
		t.Fatalf("expected tag to be found")
	}
	if got.Decl.DBNumber != 101 {
		t.Fatalf("unexpected db number: %d", got.Decl.DBNumber)
	}

	if _, ok := r.Get("unknown"); ok {
		t.Fatalf("expected unknown tag_path to be absent")
	}
}

func TestCreateDuplicateOverwrites(t *testing.T) {
	r := newRegistry(t)
	decl1 := tag.Declaration{TagPath: "dup", DataType: tag.Int, Size: 2, DBNumber: 1, DefaultValue: int16(1)}
	decl2 := tag.Declaration{TagPath: "dup", DataType: tag.Int, Size: 2, DBNumber: 2, DefaultValue: int16(2)}

	if _, err := r.Create(decl1); err != nil {
		t.Fatalf("Create 1: %v", err)
	}
	if _, err := r.Create(decl2); err != nil {
		t.Fatalf("Create 2: %v", err)
	}

	got, ok := r.Get("dup")
	if !ok {
		t.Fatalf("expected tag to be found")
	}
	if got.Decl.DBNumber != 2 {
		t.Fatalf("expected the second declaration to win, got db=%d", got.Decl.DBNumber)
	}
}

func TestByDBAndByGroupPrefix(t *testing.T) {
	r := newRegistry(t)
	decls := []tag.Declaration{
		{TagPath: "a", DataType: tag.Int, Size: 2, DBNumber: 101, Group: "motors.line1"},
		{TagPath: "b", DataType: tag.Int, Size: 2, DBNumber: 101, Group: "sensors"},
		{TagPath: "c", DataType: tag.Int, Size: 2, DBNumber: 102, Group: "motors.line2"},
	}
	for _, d := range decls {
		if _, err := r.Create(d); err != nil {
			t.Fatalf("Create(%s): %v", d.TagPath, err)
		}
	}

	if got := r.ByDB(101); len(got) != 2 {
		t.Fatalf("expected 2 tags in db 101, got %d", len(got))
	}
	if got := r.ByGroupPrefix("motors"); len(got) != 2 {
		t.Fatalf("expected 2 tags under group prefix 'motors', got %d", len(got))
	}
	if got := r.All(); len(got) != 3 {
		t.Fatalf("expected 3 tags total, got %d", len(got))
	}
}

func TestByPLC(t *testing.T) {
	r := newRegistry(t)
	decls := []tag.Declaration{
		{TagPath: "a", DataType: tag.Int, Size: 2, DBNumber: 101, PLC: "plc1"},
		{TagPath: "b", DataType: tag.Int, Size: 2, DBNumber: 101, PLC: "plc1"},
		{TagPath: "c", DataType: tag.Int, Size: 2, DBNumber: 102, PLC: "plc2"},
	}
	for _, d := range decls {
		if _, err := r.Create(d); err != nil {
			t.Fatalf("Create(%s): %v", d.TagPath, err)
		}
	}

	if got := r.ByPLC("plc1"); len(got) != 2 {
		t.Fatalf("expected 2 tags for plc1, got %d", len(got))
	}
	if got := r.ByPLC("plc2"); len(got) != 1 {
		t.Fatalf("expected 1 tag for plc2, got %d", len(got))
	}
	if got := r.ByPLC("plc3"); len(got) != 0 {
		t.Fatalf("expected 0 tags for unknown plc, got %d", len(got))
	}
}
