package reconcile

import (
	"strings"

	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/shared/types"
)

// classTransition is an allow-listed wm-class rename. Matching is by
// lowercase prefix in either direction, covering apps that start under a
// launcher class and settle into a per-document one.
type classTransition struct {
	a, b string
}

var knownTransitions = []classTransition{
	{"soffice", "libreoffice-"},
	{"libreofficedev", "libreoffice-"},
	{"gimp-", "gimp"},
	{"steam_app_", "steam"},
}

// MigrateClass handles a window whose wm-class changed after creation. The
// record bound under the old class is moved into the new class's app record
// when the transition is recognized; the old record set shrinks, and an
// emptied app record is deleted.
//
// Returns the moved instance, or false when nothing migrated (unrecognized
// transition, or no record found under any other class).
func (r *Reconciler) MigrateClass(win types.WindowInfo, oldClass string) (*types.InstanceRecord, bool) {
	if oldClass == "" || strings.EqualFold(oldClass, win.Class) {
		return nil, false
	}
	if !r.recognizedTransition(oldClass, win.Class) {
		return nil, false
	}

	src, inst := r.findBound(win, oldClass)
	if inst == nil {
		return nil, false
	}

	src.Remove(inst.ID)
	if len(src.Instances) == 0 {
		r.store.RemoveApp(src.Class)
	} else {
		r.store.SetApp(src)
	}

	dst := r.store.GetApp(win.Class)
	if dst == nil {
		dst = &types.AppRecord{Class: win.Class}
	}
	dst.Instances = append(dst.Instances, inst)
	r.store.SetApp(dst)

	if r.metrics != nil {
		r.metrics.ClassMigrations.Inc()
	}
	r.log.Info("migrated instance across class change",
		zap.String("from", src.Class),
		zap.String("to", win.Class),
		zap.String("instance", inst.ID))
	return inst, true
}

// findBound locates the record for the window, preferring the old class but
// searching every other app record by session sequence and stable window id.
func (r *Reconciler) findBound(win types.WindowInfo, oldClass string) (*types.AppRecord, *types.InstanceRecord) {
	if app := r.store.GetApp(oldClass); app != nil {
		if inst := matchIn(app, win); inst != nil {
			return app, inst
		}
	}
	for _, app := range r.store.AllApps() {
		if strings.EqualFold(app.Class, win.Class) {
			continue
		}
		if inst := matchIn(app, win); inst != nil {
			return app, inst
		}
	}
	return nil, nil
}

func matchIn(app *types.AppRecord, win types.WindowInfo) *types.InstanceRecord {
	for _, inst := range app.Instances {
		if win.Sequence != 0 && inst.Sequence == win.Sequence {
			return inst
		}
		if win.StableID != "" && inst.WindowID == win.StableID {
			return inst
		}
	}
	return nil
}

// recognizedTransition reports whether the rename is one the daemon trusts:
// both classes belong to one plugin identity, or the pair matches the
// allow-list in either direction.
func (r *Reconciler) recognizedTransition(oldClass, newClass string) bool {
	if r.plugins != nil && r.plugins.SharedIdentity(oldClass, newClass) {
		return true
	}
	lo, ln := strings.ToLower(oldClass), strings.ToLower(newClass)
	for _, t := range knownTransitions {
		if strings.HasPrefix(lo, t.a) && strings.HasPrefix(ln, t.b) {
			return true
		}
		if strings.HasPrefix(lo, t.b) && strings.HasPrefix(ln, t.a) {
			return true
		}
	}
	return false
}
