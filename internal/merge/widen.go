package merge

import (
	"reflect"
	"strings"

	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/samber/lo"
)

// WidenResult lists the fields Widen filled and the populated fields whose
// incoming value differed and was dropped.
type WidenResult struct {
	Filled    []string
	Conflicts []string
}

func (r *WidenResult) merge(prefix string, o WidenResult) {
	for _, f := range o.Filled {
		r.Filled = append(r.Filled, prefix+f)
	}
	for _, f := range o.Conflicts {
		r.Conflicts = append(r.Conflicts, prefix+f)
	}
}

// recorded names the stat fields whose zero value is an observation (a loss,
// a deathless game) rather than a gap. They are never filled; a differing
// incoming value is a conflict. Booleans are treated the same way.
var recorded = []string{"win", "kills", "deaths", "assists", "kda"}

func widenRecord(dst *riftlens.MatchRecord, src riftlens.MatchRecord) WidenResult {
	var res WidenResult
	meta := fillFields(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src), "playerData", "participants")
	res.merge("", meta)

	switch {
	case src.Player == nil:
	case dst.Player == nil:
		p := *src.Player
		dst.Player = &p
		res.Filled = append(res.Filled, "playerData")
	default:
		res.merge("playerData.", widenStat(dst.Player, *src.Player))
	}

	for _, p := range src.Participants {
		_, idx, found := lo.FindIndexOf(dst.Participants, func(q riftlens.ParticipantStat) bool {
			return q.PUUID == p.PUUID
		})
		if !found {
			dst.Participants = append(dst.Participants, p)
			res.Filled = append(res.Filled, "participants["+p.PUUID+"]")
			continue
		}
		res.merge("participants["+p.PUUID+"].", widenStat(&dst.Participants[idx], p))
	}
	return res
}

// widenStat fills the gaps of dst from src. A KDA stored as unreadable is a
// gap and takes a readable incoming value; an unreadable incoming KDA is
// ignored.
func widenStat(dst *riftlens.ParticipantStat, src riftlens.ParticipantStat) WidenResult {
	var res WidenResult
	skip := []string{"kdaUnreadable"}
	switch {
	case src.KDAUnreadable:
		skip = append(skip, "kda")
	case dst.KDAUnreadable:
		dst.KDA, dst.KDAUnreadable = src.KDA, false
		res.Filled = append(res.Filled, "kda")
	}
	res.merge("", fillFields(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src), skip...))
	return res
}

// fillFields copies fields of src into dst where dst has a gap and reports
// populated fields that differ. Fields named in skip (by json name) are left
// to the caller.
func fillFields(dst, src reflect.Value, skip ...string) WidenResult {
	var res WidenResult
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		name := jsonName(t.Field(i))
		if lo.Contains(skip, name) {
			continue
		}
		d, s := dst.Field(i), src.Field(i)
		switch {
		case reflect.DeepEqual(d.Interface(), s.Interface()):
		case d.Kind() == reflect.Bool || lo.Contains(recorded, name):
			res.Conflicts = append(res.Conflicts, name)
		case isGap(s):
		case isGap(d):
			d.Set(s)
			res.Filled = append(res.Filled, name)
		default:
			res.Conflicts = append(res.Conflicts, name)
		}
	}
	return res
}

// isGap reports whether v carries no information: a zero value, or a slice
// whose elements are all zero (an unknown item build).
func isGap(v reflect.Value) bool {
	if v.IsZero() {
		return true
	}
	if v.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if !v.Index(i).IsZero() {
			return false
		}
	}
	return true
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}
