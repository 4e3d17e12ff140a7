package driver

import (
	"errors"
	"testing"

	"tinygo.org/x/bluetooth"
)

func mustMAC(t *testing.T, s string) bluetooth.MAC {
	t.Helper()
	mac, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q) error = %v", s, err)
	}
	return mac
}

func TestParseAddress(t *testing.T) {
	want := bluetooth.MAC{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"colon upper", "AA:BB:CC:DD:EE:FF", false},
		{"colon lower", "aa:bb:cc:dd:ee:ff", false},
		{"plain hex", "aabbccddeeff", false},
		{"padded", "  AA:BB:CC:DD:EE:FF ", false},
		{"empty", "", true},
		{"short", "AA:BB:CC:DD:EE", true},
		{"bad digit", "AA:BB:CC:DD:EE:FG", true},
		{"misplaced colon", "AAB:BC:CD:DE:EF:F", true},
		{"dashes", "AA-BB-CC-DD-EE-FF", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrParameter) {
					t.Errorf("ParseAddress(%q) error = %v, want ErrParameter", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.in, err)
			}
			if got != want {
				t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestDeviceTableLookup(t *testing.T) {
	table := NewDeviceTable(nil)
	mac := mustMAC(t, "11:22:33:44:55:66")
	table.Add(mac, 2)

	for _, s := range []string{"11:22:33:44:55:66", "112233445566"} {
		d, err := table.Lookup(s)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", s, err)
		}
		if d.Handle != 2 || d.Address != mac {
			t.Errorf("Lookup(%q) = %+v", s, d)
		}
	}

	_, err := table.Lookup("66:55:44:33:22:11")
	if !errors.Is(err, ErrParameter) {
		t.Errorf("Lookup(unknown) error = %v, want ErrParameter", err)
	}
}

func TestDeviceTableOneEntryPerAddress(t *testing.T) {
	table := NewDeviceTable(nil)
	mac := mustMAC(t, "11:22:33:44:55:66")
	table.Add(mac, 1)
	table.Add(mac, 4)

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	d, _ := table.Get(mac)
	if d.Handle != 4 {
		t.Errorf("Handle = %d, want 4", d.Handle)
	}
}

func TestDeviceTableReusedHandleEvictsStale(t *testing.T) {
	table := NewDeviceTable(nil)
	old := mustMAC(t, "11:22:33:44:55:66")
	fresh := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	table.Add(old, 1)
	table.Add(fresh, 1)

	if _, err := table.Get(old); err == nil {
		t.Error("stale address still present after its handle was reused")
	}
	if d, ok := table.ByHandle(1); !ok || d.Address != fresh {
		t.Errorf("ByHandle(1) = %+v, %v", d, ok)
	}
}

func TestDeviceTableRemoval(t *testing.T) {
	table := NewDeviceTable(nil)
	a := mustMAC(t, "11:22:33:44:55:66")
	b := mustMAC(t, "AA:BB:CC:DD:EE:FF")
	table.Add(b, 5)
	table.Add(a, 3)

	list := table.List()
	if len(list) != 2 || list[0].Handle != 3 || list[1].Handle != 5 {
		t.Fatalf("List() = %+v, want handles 3, 5", list)
	}

	d, ok := table.RemoveHandle(5)
	if !ok || d.Address != b {
		t.Errorf("RemoveHandle(5) = %+v, %v", d, ok)
	}
	if _, ok := table.RemoveHandle(5); ok {
		t.Error("RemoveHandle(5) twice reported a removal")
	}
	if !table.Remove(a) {
		t.Error("Remove(a) = false, want true")
	}
	if table.Remove(a) {
		t.Error("Remove(a) twice = true, want false")
	}

	table.Add(a, 1)
	table.Add(b, 2)
	table.DestroyAll()
	if table.Len() != 0 {
		t.Errorf("Len() after DestroyAll = %d", table.Len())
	}
}
