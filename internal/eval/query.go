package eval

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/rulekernel/internal/ir"
)

// Query evaluates a collection expression. Results larger than the
// context's MaxQueryResults fail with QUERY_BOUNDS_EXCEEDED.
func Query(q ir.Query, ctx *Context) (ir.List, error) {
	out, err := query(q, ctx)
	if err != nil {
		return nil, err
	}
	if len(out) > ctx.maxResults() {
		return nil, boundsExceeded(len(out), ctx)
	}
	return out, nil
}

func query(q ir.Query, ctx *Context) (ir.List, error) {
	switch e := q.(type) {
	case ir.TokensInZone:
		zone, err := Zone(e.Zone, ctx)
		if err != nil {
			return nil, err
		}
		var out ir.List
		for _, tok := range ctx.State.Zones[zone] {
			ok, err := MatchFilters(tok, e.Filters, ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, tok)
			}
		}
		return out, nil
	case ir.ZonesQuery:
		var out ir.List
		for _, id := range ctx.State.ZoneIDs() {
			if e.Where != nil {
				ok, err := Condition(e.Where, ctx.WithBinding("$zone", ir.Str(id)))
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			out = append(out, ir.Str(id))
		}
		return out, nil
	case ir.PlayersQuery:
		out := make(ir.List, ctx.State.PlayerCount)
		for i := range out {
			out[i] = ir.Int(i)
		}
		return out, nil
	case ir.IntsInRange:
		lo, err := Int(e.Min, ctx)
		if err != nil {
			return nil, err
		}
		hi, err := Int(e.Max, ctx)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return ir.List{}, nil
		}
		// The span is computed in uint64 so [MinInt64, MaxInt64] cannot wrap.
		span := uint64(hi) - uint64(lo)
		if limit := uint64(ctx.maxResults()); span >= limit {
			return nil, boundsExceeded(int(min(span, math.MaxInt32-1))+1, ctx)
		}
		size := int64(span) + 1
		out := make(ir.List, 0, size)
		for i := int64(0); i < size; i++ {
			out = append(out, ir.Int(lo+i))
		}
		return out, nil
	case ir.EnumsQuery:
		out := make(ir.List, len(e.Values))
		for i, v := range e.Values {
			out[i] = ir.Str(v)
		}
		return out, nil
	case ir.BindingQuery:
		v, err := lookup(e.Name, ctx)
		if err != nil {
			return nil, err
		}
		list, ok := v.(ir.List)
		if !ok {
			return nil, mismatch("binding query "+e.Name, ir.KindList, v)
		}
		return list, nil
	case ir.ConcatQuery:
		var out ir.List
		for _, part := range e.Parts {
			items, err := query(part, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	case nil:
		return nil, newError(CodeTypeMismatch, "missing query")
	default:
		return nil, fmt.Errorf("unknown query %T", q)
	}
}

// MatchFilters reports whether tok satisfies every prop filter. A token
// without the filtered prop does not match.
func MatchFilters(tok ir.Token, filters []ir.PropFilter, ctx *Context) (bool, error) {
	for _, f := range filters {
		pv, ok := tok.Props[f.Prop]
		if !ok {
			return false, nil
		}
		want, err := Value(f.Value, ctx)
		if err != nil {
			return false, err
		}
		match, err := Compare(f.Op, pv, want)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func boundsExceeded(n int, ctx *Context) *Error {
	return newError(CodeQueryBoundsExceeded,
		fmt.Sprintf("query produced %d items, limit is %d", n, ctx.maxResults()),
		"count", strconv.Itoa(n),
		"limit", strconv.Itoa(ctx.maxResults()))
}
