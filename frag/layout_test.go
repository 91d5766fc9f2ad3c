package frag_test

import (
	"errors"
	"testing"

	"github.com/Urethramancer/pdas/frag"
)

func alignOnly(f *frag.Frag, end uint64) (uint64, error) {
	if f.Kind == frag.Align {
		return frag.AlignPadding(f, end), nil
	}
	return 0, nil
}

func TestNewLayout(t *testing.T) {
	l := frag.New()
	if l.Current().Name != ".text" {
		t.Errorf("expected .text to be current, got %s", l.Current())
	}
	for _, name := range []string{".text", ".data", ".bss"} {
		s, ok := l.Lookup(name)
		if !ok || !s.IsNormal() {
			t.Errorf("expected normal section %s", name)
		}
	}
	if frag.Absolute.IsNormal() || frag.Undefined.IsNormal() {
		t.Error("pseudo sections must not be normal")
	}
	if got := l.Section(".data", frag.FlagData); got != l.Sections()[1] {
		t.Error("expected Section to find the existing .data")
	}
}

func TestOffsetIsFixed(t *testing.T) {
	l := frag.New()
	first := l.Frag()
	l.Grow(3)
	l.CloseVariant(frag.Space, nil, 0, 0)
	l.Grow(2)
	second := l.Frag()

	if off, ok := l.OffsetIsFixed(first, first); !ok || off != 0 {
		t.Errorf("a fragment is fixed against itself, got %d %v", off, ok)
	}
	if _, ok := l.OffsetIsFixed(second, first); ok {
		t.Error("a space fragment in between must keep the distance open")
	}

	l.Finalize()
	if _, ok := l.OffsetIsFixed(second, first); !ok {
		t.Error("everything in one section is fixed once finalized")
	}
}

func TestOffsetIsFixedAcrossFills(t *testing.T) {
	l := frag.New()
	first := l.Frag()
	l.Grow(4)

	// Chain a second fill fragment by hand.
	s := l.Current()
	second := &frag.Frag{Section: s}
	first.Next = second

	off, ok := l.OffsetIsFixed(second, first)
	if !ok {
		t.Fatal("expected fill fragments to be fixed against each other")
	}
	// Both addresses are still 0, so the distance of 4 comes from the offset.
	if d := int64(second.Address) - int64(first.Address) - off; d != 4 {
		t.Errorf("expected distance 4, got %d", d)
	}

	off, ok = l.OffsetIsFixed(first, second)
	if !ok || int64(first.Address)-int64(second.Address)-off != -4 {
		t.Errorf("expected distance -4, got %d %v", off, ok)
	}
}

func TestIsGreaterThanOffset(t *testing.T) {
	l := frag.New()
	first := l.Frag()
	l.Grow(2)
	l.CloseAlign(3, 0, 0)
	second := l.Frag()

	off, ok := l.IsGreaterThanOffset(0, second, 1, first)
	if !ok {
		t.Fatal("expected a proof that the second fragment comes later")
	}
	if int64(0) <= int64(1)+off {
		t.Errorf("offset %d does not keep the comparison true", off)
	}
	if _, ok := l.IsGreaterThanOffset(0, first, 1, second); ok {
		t.Error("the first fragment cannot be proven to come later")
	}
}

func TestRelaxAlign(t *testing.T) {
	l := frag.New()
	l.Append(1, 2, 3)
	l.CloseAlign(2, 0xff, 0)
	l.Append(4)
	if err := l.Relax(alignOnly); err != nil {
		t.Fatalf("relax failed: %v", err)
	}

	text := l.Current()
	got := text.Bytes()
	want := []byte{1, 2, 3, 0xff, 4}
	if string(got) != string(want) {
		t.Errorf("expected % X, got % X", want, got)
	}
	if text.Size() != 5 || text.AlignPower != 2 {
		t.Errorf("expected size 5 aligned to 4, got %d and %d", text.Size(), text.AlignPower)
	}
}

func TestAlignMaxSkip(t *testing.T) {
	f := &frag.Frag{Kind: frag.Align, Power: 4, MaxSkip: 2}
	if pad := frag.AlignPadding(f, 1); pad != 0 {
		t.Errorf("expected padding beyond the limit to be dropped, got %d", pad)
	}
	f.MaxSkip = 0
	if pad := frag.AlignPadding(f, 1); pad != 15 {
		t.Errorf("expected 15, got %d", pad)
	}
}

func TestRelaxNoConvergence(t *testing.T) {
	l := frag.New()
	l.CloseVariant(frag.Space, nil, 0, 0)

	var n uint64
	err := l.Relax(func(*frag.Frag, uint64) (uint64, error) {
		n++
		return n, nil
	})
	if !errors.Is(err, frag.ErrNoConvergence) {
		t.Errorf("expected ErrNoConvergence, got %v", err)
	}
}
