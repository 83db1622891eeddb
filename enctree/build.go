package enctree

import (
	"math/bits"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sarchlab/m2isa/arch"
)

// row is the per-step view of one entry: its remaining candidate fields
// with their values. Rows are replaced, never modified, between steps.
type row struct {
	index  int
	entry  Entry
	fields map[arch.RangeSpec]uint64
}

func (r *row) with(fields map[arch.RangeSpec]uint64) *row {
	return &row{index: r.index, entry: r.entry, fields: fields}
}

// Builder builds decode trees.
type Builder struct {
	logger zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger receiving field selection events.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build builds a decode tree with a default Builder.
func Build(entries []Entry, width int) (*Node, error) {
	return NewBuilder().Build(entries, width)
}

// Build partitions the width-bit word space until every entry owns one
// leaf.
//
// Entries are considered most specific first: more fixed bits, then the
// higher match value, then name. At each group the builder branches on a
// field that every member fixes and that takes at least two values, most
// distinct values first, then lowest bit position. When there is none, a
// wider field tiled exactly by narrower fields of the group is folded into
// one. Failing that, the fields are cut down to a run of bits fixed by every
// member. Groups that still cannot be split fail with
// EncodingSpaceConflictError.
func (b *Builder) Build(entries []Entry, width int) (*Node, error) {
	root, err := NewRoot(width)
	if err != nil {
		return nil, err
	}

	rows := make([]*row, len(entries))
	for i, e := range entries {
		fields, err := e.normalize(width)
		if err != nil {
			return nil, err
		}
		r := &row{index: i, entry: e, fields: make(map[arch.RangeSpec]uint64, len(fields))}
		for _, f := range fields {
			r.fields[f] = value(e.Match, f)
		}
		rows[i] = r
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, c := rows[i].entry, rows[j].entry
		if pa, pc := bits.OnesCount64(a.Mask), bits.OnesCount64(c.Mask); pa != pc {
			return pa > pc
		}
		if a.Match != c.Match {
			return a.Match > c.Match
		}
		return a.Name < c.Name
	})

	switch len(rows) {
	case 0:
	case 1:
		if _, err := root.Instruction(rows[0].entry.Name, rows[0].entry.Mask, rows[0].entry.Match); err != nil {
			return nil, err
		}
	default:
		if err := b.split(root, rows, 0); err != nil {
			return nil, err
		}
	}

	b.logger.Debug().
		Int("width", width).
		Int("instructions", root.NumInstrs()).
		Uint64("used", root.Used()).
		Msg("built decode tree")

	return root, nil
}

func (b *Builder) split(node *Node, rows []*row, depth int) error {
	field, rows, err := b.choose(node.Size, rows)
	if err != nil {
		return err
	}
	if err := node.Select(field); err != nil {
		return err
	}

	groups := make(map[uint64][]*row)
	var values []uint64
	for _, r := range rows {
		v := r.fields[field]
		if _, ok := groups[v]; !ok {
			values = append(values, v)
		}
		groups[v] = append(groups[v], r)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	b.logger.Debug().
		Int("depth", depth).
		Str("node", node.Bits()).
		Stringer("field", field).
		Int("values", len(values)).
		Msg("selected field")

	for _, v := range values {
		child, err := node.Commit(v)
		if err != nil {
			return err
		}

		part := trim(groups[v], field)
		if len(part) == 1 {
			e := part[0].entry
			if _, err := child.Instruction(e.Name, e.Mask, e.Match); err != nil {
				return err
			}
			continue
		}
		if err := b.split(child, part, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// choose picks the field to branch on, folding a synthesized field into
// the rows when no fixed field discriminates.
func (b *Builder) choose(width int, rows []*row) (arch.RangeSpec, []*row, error) {
	if f, ok := discriminating(rows); ok {
		return f, rows, nil
	}

	for _, big := range candidates(rows) {
		pieces := tile(big, candidates(rows))
		if pieces == nil || !covers(big, pieces) {
			continue
		}
		folded, ok := fold(rows, big, pieces)
		if !ok || distinct(folded, big) < 2 {
			continue
		}

		names := make([]string, len(pieces))
		for i, p := range pieces {
			names[i] = p.String()
		}
		b.logger.Info().
			Stringer("field", big).
			Str("pieces", strings.Join(names, ",")).
			Msg("synthesized field")
		return big, folded, nil
	}

	if f, refined, ok := refine(rows); ok {
		b.logger.Debug().
			Stringer("field", f).
			Msg("split fields on common bits")
		return f, refined, nil
	}

	err := &EncodingSpaceConflictError{Width: width}
	for _, r := range rows {
		err.Conflicts = append(err.Conflicts, Conflict{
			Index: r.index,
			Name:  r.entry.Name,
			Mask:  r.entry.Mask,
			Match: r.entry.Match,
		})
	}
	return arch.RangeSpec{}, nil, err
}

// discriminating returns the best field fixed by every row.
func discriminating(rows []*row) (arch.RangeSpec, bool) {
	var (
		best      arch.RangeSpec
		bestCount int
	)
	for f := range rows[0].fields {
		complete := true
		for _, r := range rows[1:] {
			if _, ok := r.fields[f]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		n := distinct(rows, f)
		if n < 2 {
			continue
		}
		if n > bestCount || (n == bestCount && f.Lower < best.Lower) {
			best, bestCount = f, n
		}
	}
	return best, bestCount > 0
}

func distinct(rows []*row, f arch.RangeSpec) int {
	seen := make(map[uint64]struct{})
	for _, r := range rows {
		seen[r.fields[f]] = struct{}{}
	}
	return len(seen)
}

// candidates returns every field of the group, widest first, then lowest.
func candidates(rows []*row) []arch.RangeSpec {
	set := make(map[arch.RangeSpec]struct{})
	for _, r := range rows {
		for f := range r.fields {
			set[f] = struct{}{}
		}
	}
	out := make([]arch.RangeSpec, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Length() != out[j].Length() {
			return out[i].Length() > out[j].Length()
		}
		return out[i].Lower < out[j].Lower
	})
	return out
}

// tile returns the smallest set of fields strictly narrower than big that
// cover it exactly, lowest first, or nil.
func tile(big arch.RangeSpec, fields []arch.RangeSpec) []arch.RangeSpec {
	var pieces []arch.RangeSpec
	for _, f := range fields {
		if f.Length() < big.Length() && big.Contains(f) {
			pieces = append(pieces, f)
		}
	}
	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].Length() > pieces[j].Length()
	})

	var best []arch.RangeSpec
	var walk func(cursor int, path []arch.RangeSpec)
	walk = func(cursor int, path []arch.RangeSpec) {
		if best != nil && len(path) >= len(best) {
			return
		}
		if cursor > big.Upper {
			best = append([]arch.RangeSpec(nil), path...)
			return
		}
		for _, p := range pieces {
			if p.Lower == cursor {
				walk(p.Upper+1, append(path, p))
			}
		}
	}
	walk(big.Lower, nil)
	return best
}

// covers checks that pieces rebuild big: the union of their masks is the
// mask of big and their widths add up to its width.
func covers(big arch.RangeSpec, pieces []arch.RangeSpec) bool {
	var mask uint64
	width := 0
	for _, p := range pieces {
		mask |= p.Mask()
		width += p.Length()
	}
	return mask == big.Mask() && width == big.Length()
}

// fold gives every row a value for big, shifting the values of the pieces
// into place. It fails when a row fixes neither big nor all pieces.
func fold(rows []*row, big arch.RangeSpec, pieces []arch.RangeSpec) ([]*row, bool) {
	out := make([]*row, len(rows))
	for i, r := range rows {
		if _, ok := r.fields[big]; ok {
			out[i] = r
			continue
		}

		fields := make(map[arch.RangeSpec]uint64, len(r.fields))
		for f, v := range r.fields {
			fields[f] = v
		}
		var v uint64
		for _, p := range pieces {
			pv, ok := r.fields[p]
			if !ok {
				return nil, false
			}
			v |= pv << uint(p.Lower-big.Lower)
			delete(fields, p)
		}
		fields[big] = v
		out[i] = r.with(fields)
	}
	return out, true
}

// refine looks at the bits every row fixes, whatever the ranges they
// belong to, and picks the run of them with the most distinct values,
// then the lowest. Fields overlapping the run are cut around it.
func refine(rows []*row) (arch.RangeSpec, []*row, bool) {
	common := ^uint64(0)
	for _, r := range rows {
		var fixed uint64
		for f := range r.fields {
			fixed |= f.Mask()
		}
		common &= fixed
	}

	var (
		best      arch.RangeSpec
		bestCount int
	)
	for _, run := range maskRuns(common) {
		seen := make(map[uint64]struct{})
		for _, r := range rows {
			seen[value(r.entry.Match, run)] = struct{}{}
		}
		if n := len(seen); n >= 2 && n > bestCount {
			best, bestCount = run, n
		}
	}
	if bestCount == 0 {
		return arch.RangeSpec{}, nil, false
	}

	out := make([]*row, len(rows))
	for i, r := range rows {
		fields := make(map[arch.RangeSpec]uint64, len(r.fields)+1)
		for f, v := range r.fields {
			if !f.Overlaps(best) {
				fields[f] = v
				continue
			}
			for _, rest := range maskRuns(f.Mask() &^ best.Mask()) {
				fields[rest] = value(r.entry.Match, rest)
			}
		}
		fields[best] = value(r.entry.Match, best)
		out[i] = r.with(fields)
	}
	return best, out, true
}

// trim drops the committed range from the fields of every row, splitting
// partially committed fields into their remaining runs.
func trim(rows []*row, committed arch.RangeSpec) []*row {
	out := make([]*row, len(rows))
	for i, r := range rows {
		fields := make(map[arch.RangeSpec]uint64, len(r.fields))
		for f, v := range r.fields {
			if !f.Overlaps(committed) {
				fields[f] = v
				continue
			}
			word := v << uint(f.Lower)
			for _, run := range maskRuns(f.Mask() &^ committed.Mask()) {
				fields[run] = value(word, run)
			}
		}
		out[i] = r.with(fields)
	}
	return out
}
