package main

import "testing"

func TestParseSurface(t *testing.T) {
	tests := []struct {
		value              string
		wantName, wantPath string
		wantColor          string
		wantErr            bool
	}{
		{"pial=surf/lh.pial:#ff0000", "pial", "surf/lh.pial", "#ff0000", false},
		{"white=surf/lh.white", "white", "surf/lh.white", "", false},
		{"surf/rh.pial", "rh.pial", "surf/rh.pial", "", false},
		{"C:/data/lh.stl:#00ff00", "lh.stl", "C:/data/lh.stl", "#00ff00", false},
		{"pial=", "", "", "", true},
		{"/data/run=2/lh.white", "lh.white", "/data/run=2/lh.white", "", false},
		{"white=/data/run=2/lh.white:#0000ff", "white", "/data/run=2/lh.white", "#0000ff", false},
	}

	for _, tt := range tests {
		surf, err := parseSurface(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.value, err)
			continue
		}
		if surf.Name != tt.wantName || surf.Path != tt.wantPath || surf.Color != tt.wantColor {
			t.Errorf("Expected %s/%s/%s for %q, got %s/%s/%s",
				tt.wantName, tt.wantPath, tt.wantColor, tt.value, surf.Name, surf.Path, surf.Color)
		}
	}
}

func TestSurfaceFlagsRepeat(t *testing.T) {
	var s surfaceFlags
	if err := s.Set("white=lh.white"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("pial=lh.pial:#ffff00"); err != nil {
		t.Fatal(err)
	}
	if len(s) != 2 {
		t.Fatalf("Expected 2 surfaces, got %d", len(s))
	}
	if s.String() != "white,pial" {
		t.Errorf("Expected white,pial, got %s", s.String())
	}
}
