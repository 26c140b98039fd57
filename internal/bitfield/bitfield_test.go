package bitfield

import "testing"

func TestPackPageFlags(t *testing.T) {
	tests := []struct {
		name     string
		flags    PageFlags
		expected uint64
	}{
		{"all false", PageFlags{}, 0x0},
		{"reserved only", PageFlags{Reserved: true}, 0x1},
		{"kernel only", PageFlags{Kernel: true}, 0x2},
		{"gap only", PageFlags{Gap: true}, 0x4},
		{"all set", PageFlags{Reserved: true, Kernel: true, Gap: true}, 0x7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Pack(tt.flags, nil)
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if packed != tt.expected {
				t.Errorf("Pack() = 0x%x, want 0x%x", packed, tt.expected)
			}
		})
	}
}

func TestUnpackPageFlags(t *testing.T) {
	tests := []struct {
		name   string
		packed uint64
		want   PageFlags
	}{
		{"zero", 0x0, PageFlags{}},
		{"bit0", 0x1, PageFlags{Reserved: true}},
		{"bit1", 0x2, PageFlags{Kernel: true}},
		{"bit2", 0x4, PageFlags{Gap: true}},
		{"all", 0x7, PageFlags{Reserved: true, Kernel: true, Gap: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got PageFlags
			if err := Unpack(tt.packed, &got); err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Unpack() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInodeAccessRoundTrip(t *testing.T) {
	cases := []InodeAccess{
		{},
		{OwnerRead: true, OwnerWrite: true, OwnerExec: true},
		{GroupWrite: true, OtherRead: true},
		{OwnerRead: true, OwnerWrite: true, OwnerExec: true, GroupRead: true, GroupWrite: true, GroupExec: true, OtherRead: true, OtherWrite: true, OtherExec: true},
	}
	for i, original := range cases {
		packed, err := Pack(original, &Config{NumBits: 9})
		if err != nil {
			t.Fatalf("case %d: Pack() error = %v", i, err)
		}
		var got InodeAccess
		if err := Unpack(packed, &got); err != nil {
			t.Fatalf("case %d: Unpack() error = %v", i, err)
		}
		if got != original {
			t.Errorf("case %d: round trip = %+v, want %+v", i, got, original)
		}
	}
}

func TestPackRejectsNonStruct(t *testing.T) {
	if _, err := Pack(42, nil); err == nil {
		t.Fatal("expected error packing a non-struct")
	}
}

func TestPackRejectsOverflow(t *testing.T) {
	type tooWide struct {
		V uint32 `bitfield:",2"`
	}
	if _, err := Pack(tooWide{V: 7}, nil); err == nil {
		t.Fatal("expected error when field value exceeds its declared width")
	}
}

func TestPackEnforcesNumBits(t *testing.T) {
	type wide struct {
		A uint32 `bitfield:",4"`
		B uint32 `bitfield:",4"`
	}
	if _, err := Pack(wide{A: 1, B: 1}, &Config{NumBits: 4}); err == nil {
		t.Fatal("expected error when total width exceeds NumBits")
	}
}
