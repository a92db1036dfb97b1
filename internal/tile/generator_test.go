package tile

import (
	"image/color"
	"testing"
)

func TestTileImageStore_PutGet(t *testing.T) {
	store := newTileImageStore(4)
	td := newTileData(solidImage(256, color.RGBA{10, 20, 30, 255}), 256)

	if got := store.Get(5, 1, 2); got != nil {
		t.Fatalf("Get on empty store = %v, want nil", got)
	}

	store.Put(5, 1, 2, td)
	if got := store.Get(5, 1, 2); got != td {
		t.Fatalf("Get after Put = %v, want the same *TileData", got)
	}
	if got := store.Get(5, 1, 3); got != nil {
		t.Fatalf("Get on a different key = %v, want nil", got)
	}
	if n := store.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}

	store.Clear()
	if n := store.Len(); n != 0 {
		t.Errorf("Len() after Clear = %d, want 0", n)
	}
}

func TestParseResampling(t *testing.T) {
	if m, err := ParseResampling("bilinear"); err != nil || m != ResamplingBilinear {
		t.Errorf("ParseResampling(bilinear) = %v, %v", m, err)
	}
	if m, err := ParseResampling("nearest"); err != nil || m != ResamplingNearest {
		t.Errorf("ParseResampling(nearest) = %v, %v", m, err)
	}
	if _, err := ParseResampling("bogus"); err == nil {
		t.Error("ParseResampling(bogus) expected an error")
	}
}
