package asm

import (
	"github.com/Urethramancer/pdas/diag"
	"github.com/Urethramancer/pdas/expr"
	"github.com/Urethramancer/pdas/frag"
)

// fixup is a data field whose value was not known when it was emitted.
type fixup struct {
	frag  *frag.Frag
	where int
	size  int
	node  expr.Node
	pos   diag.Pos
}

// Fixup reserves size bytes at the current location, to be filled from n
// once layout is done.
func (a *Assembler) Fixup(size int, n expr.Node) {
	f := a.layout.Frag()
	where := len(f.Fixed)
	a.layout.Grow(size)
	a.fixups = append(a.fixups, &fixup{frag: f, where: where, size: size, node: n, pos: a.diag.Pos()})
}

// finish lays the sections out, applies fixups and collects the object.
// Diagnostics not tied to a source line are reported at end.
func (a *Assembler) finish(end diag.Pos) *Object {
	if err := a.layout.Relax(a.sizeOf); err != nil {
		a.diag.Errorf("%v", err)
	}
	a.layout.Finalize()
	a.checkVariants()

	for _, fx := range a.fixups {
		a.diag.SetPos(fx.pos)
		a.apply(fx)
	}
	a.diag.SetPos(end)
	return a.object()
}

// sizeOf sizes variable parts during relaxation. Problems are left for
// checkVariants, so every pass sees a usable size.
func (a *Assembler) sizeOf(f *frag.Frag, end uint64) (uint64, error) {
	switch f.Kind {
	case frag.Align:
		return frag.AlignPadding(f, end), nil
	case frag.Org:
		target, ok := a.variantValue(f)
		if !ok || target < end || target-end > MaxRepeat {
			return 0, nil
		}
		return target - end, nil
	case frag.Space:
		count, ok := a.variantValue(f)
		if !ok || count > MaxRepeat {
			return 0, nil
		}
		return count, nil
	}
	return 0, nil
}

// variantValue evaluates the target of an Org or Space fragment. Org targets
// may be locations in the fragment's own section.
func (a *Assembler) variantValue(f *frag.Frag) (uint64, bool) {
	sym, _ := f.Target.(*expr.Symbol)
	if sym == nil {
		return f.Offset, true
	}
	n := expr.SymbolRef(sym, f.Offset)
	if err := a.engine.Reduce(&n); err != nil {
		return 0, false
	}
	switch {
	case n.Op == expr.OpConstant:
		return n.Number, true
	case f.Kind == frag.Org && n.Op == expr.OpSymbol && n.Add.Section() == f.Section:
		return n.Add.Value() + n.Number, true
	}
	return 0, false
}

// checkVariants reports Org and Space fragments that could not be sized.
func (a *Assembler) checkVariants() {
	for _, s := range a.layout.Sections() {
		for f := s.First(); f != nil; f = f.Next {
			if f.Kind != frag.Org && f.Kind != frag.Space {
				continue
			}
			a.diag.SetPos(a.variants[f])
			if sym, ok := f.Target.(*expr.Symbol); ok {
				n := expr.SymbolRef(sym, f.Offset)
				if a.reportCycle(a.engine.Reduce(&n)) {
					continue
				}
			}

			v, ok := a.variantValue(f)
			switch {
			case f.Kind == frag.Org && !ok:
				a.diag.Errorf("cannot resolve .org target")
			case f.Kind == frag.Org && v < f.End():
				a.diag.Errorf("attempt to move .org backwards")
			case f.Kind == frag.Org && v-f.End() > MaxRepeat:
				a.diag.Errorf(".org target %#x too far ahead", v)
			case f.Kind == frag.Space && !ok:
				a.diag.Errorf(".space specifies non-absolute value")
			case f.Kind == frag.Space && int64(v) < 0:
				a.diag.Warnf(".space with negative value, ignoring")
			case f.Kind == frag.Space && v > MaxRepeat:
				a.diag.Errorf(".space repeat count too large")
			}
		}
	}
}

func (a *Assembler) reportCycle(err error) bool {
	return a.engine.ReportCycle(err)
}

// apply patches a fixup with its value or turns it into a relocation.
func (a *Assembler) apply(fx *fixup) {
	n := fx.node
	err := a.engine.Reduce(&n)
	if a.reportCycle(err) {
		return
	}

	dst := fx.frag.Fixed[fx.where : fx.where+fx.size]
	switch {
	case err != nil:
		a.diag.Errorf("cannot represent expression")
	case n.Op == expr.OpConstant:
		a.put(dst, n.Number)
	case n.Op == expr.OpSymbol || n.Op == expr.OpSymbolRva:
		a.relocate(fx, n)
	default:
		a.diag.Errorf("cannot represent expression")
	}
}

// relocate records a relocation for a reference to n.Add. References to
// local symbols are made relative to their section.
func (a *Assembler) relocate(fx *fixup, n expr.Node) {
	sym := n.Add
	sec := sym.Section()
	if !sec.IsNormal() && sec != frag.Undefined {
		a.diag.Errorf("cannot represent expression")
		return
	}

	r := Reloc{
		Offset: fx.frag.Address + uint64(fx.where),
		Size:   fx.size,
		Symbol: sym.Name,
		Addend: int64(n.Number),
		RVA:    n.Op == expr.OpSymbolRva,
	}
	if sec.IsNormal() && (sym.IsSynthetic() || !sym.External()) {
		r.Symbol = sec.Name
		r.Addend += int64(sym.Value())
	}
	a.relocs[fx.frag.Section] = append(a.relocs[fx.frag.Section], r)
}

// object collects section contents, relocations and named symbols.
func (a *Assembler) object() *Object {
	obj := &Object{}
	for _, s := range a.layout.Sections() {
		img := &SectionImage{
			Name:   s.Name,
			Flags:  s.Flags,
			Align:  s.AlignPower,
			Size:   s.Size(),
			Relocs: a.relocs[s],
		}
		if s.Flags&frag.FlagNoLoad == 0 {
			img.Data = s.Bytes()
		}
		obj.Sections = append(obj.Sections, img)
	}

	for _, sym := range a.engine.Symbols.Named() {
		obj.Symbols = append(obj.Symbols, a.symbolInfo(sym))
	}
	return obj
}

// symbolInfo forces the value of sym, following equates.
func (a *Assembler) symbolInfo(sym *expr.Symbol) SymbolInfo {
	info := SymbolInfo{
		Name:     sym.Name,
		Section:  sym.Section().Name,
		Value:    sym.Value(),
		External: sym.External(),
		Weak:     sym.Weak(),
		Defined:  sym.IsDefined(),
	}
	if power, ok := a.commons[sym]; ok && !sym.IsDefined() {
		info.Section = commonSection
		info.Common, info.Align = true, power
		return info
	}
	if _, ok := sym.Stored().Deferred(); !ok {
		return info
	}

	n := expr.SymbolRef(sym, 0)
	err := a.engine.Reduce(&n)
	if a.reportCycle(err) {
		return info
	}
	switch {
	case err != nil:
		a.diag.Errorf("cannot resolve value of symbol `%s'", sym.Name)
	case n.Op == expr.OpConstant:
		info.Section, info.Value = frag.Absolute.Name, n.Number
	case n.Op == expr.OpRegister:
		info.Section, info.Value = frag.Register.Name, n.Number
	case n.Op == expr.OpSymbol && n.Add != sym:
		info.Section = n.Add.Section().Name
		info.Value = n.Add.Value() + n.Number
		info.Defined = n.Add.IsDefined()
	default:
		a.diag.Errorf("cannot resolve value of symbol `%s'", sym.Name)
	}
	return info
}
