// Package match resolves live windows against persisted instance records.
//
// Matching is the heart of identity continuity: several windows of one
// application must find "their" saved record after a restart, even though
// titles drift, workspaces change and the window manager hands out fresh
// ids. Definitive signals short-circuit; everything else accumulates into a
// weighted score.
package match

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/geometry"
	"github.com/thechief/rememberd/internal/shared/id"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Score weights, in decreasing order of trust. Definitive signals (stable
// id, session sequence, exact title) never reach scoring.
const (
	titleSegmentBonus = 3.0 // shared project segment, editors/IDEs
	fuzzyBonusMax     = 2.0 // scaled by normalized similarity
	workspaceBonus    = 1.5
	monitorBonus      = 1.0
	geometryBonusMax  = 0.75 // scaled by proximity, capped
	regexBonus        = 0.5
	originPenalty     = -1.0 // window parked near 0,0 is likely unpositioned

	// Fuzzy similarity cost bound: skip short titles and wildly different
	// lengths.
	fuzzyMinLen      = 10
	fuzzyMaxLenRatio = 2.0

	// Windows inside this margin of the screen origin are penalized.
	originMargin = 50
)

// PatternSource supplies the plugin-declared title regex for a class.
type PatternSource interface {
	TitlePattern(class string) string
}

// Matcher binds live windows to instance records.
type Matcher struct {
	patterns PatternSource
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a matcher. patterns may be nil when no plugins are loaded.
func New(patterns PatternSource, log *logging.Logger, metrics *monitoring.Metrics) *Matcher {
	return &Matcher{patterns: patterns, log: log.Named("match"), metrics: metrics}
}

// Resolve finds or creates the instance record for a live window within its
// class record. The returned record is marked assigned and its identity
// fields are refreshed from the window. created reports whether a new
// record was appended.
//
// Within one matching pass no two live windows can bind the same record:
// only unassigned records are candidates and the winner is assigned before
// return.
func (m *Matcher) Resolve(win types.WindowInfo, app *types.AppRecord) (inst *types.InstanceRecord, created bool) {
	candidates := app.Unassigned()

	if best := m.pick(win, candidates); best != nil {
		m.bind(best, win)
		return best, false
	}

	rec := newRecord(win)
	app.Instances = append(app.Instances, rec)
	m.count("created")
	m.log.Debug("created instance record",
		zap.String("class", win.Class), zap.String("instance", rec.ID))
	return rec, true
}

// pick returns the best candidate or nil when a new record should be
// created. Ties keep list order; an all-zero scoreboard falls back to the
// first unassigned instance.
func (m *Matcher) pick(win types.WindowInfo, candidates []*types.InstanceRecord) *types.InstanceRecord {
	if len(candidates) == 0 {
		return nil
	}

	// Definitive signals, highest priority first.
	for _, c := range candidates {
		if c.WindowID != "" && c.WindowID == win.StableID {
			m.count("exact")
			return c
		}
	}
	for _, c := range candidates {
		if c.Sequence != 0 && c.Sequence == win.Sequence {
			m.count("exact")
			return c
		}
	}
	for _, c := range candidates {
		if c.Title != "" && c.Title == win.Title {
			m.count("exact")
			return c
		}
	}

	var best *types.InstanceRecord
	bestScore := 0.0
	for _, c := range candidates {
		score := m.score(win, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if best != nil {
		m.count("scored")
		return best
	}

	// Nothing scored above zero; reuse the first free record rather than
	// growing the set.
	m.count("fallback")
	return candidates[0]
}

func (m *Matcher) score(win types.WindowInfo, c *types.InstanceRecord) float64 {
	score := 0.0

	if segmentMatch(win.Title, c.Title) {
		score += titleSegmentBonus
	}
	score += fuzzyBonusMax * fuzzySimilarity(win.Title, c.Title)

	if c.Workspace == win.Workspace {
		score += workspaceBonus
	}
	if c.MonitorID != "" && c.MonitorID == win.MonitorID {
		score += monitorBonus
	}
	if c.AbsoluteGeom != nil {
		score += geometryBonusMax * geometry.Proximity(win.Frame, *c.AbsoluteGeom)
	}
	if m.regexHit(win, c) {
		score += regexBonus
	}
	if win.Frame.X < originMargin && win.Frame.Y < originMargin {
		score += originPenalty
	}

	return score
}

// regexHit evaluates the instance's own regex, falling back to the
// plugin-declared pattern. Patterns are externally supplied; compile or
// match errors contribute nothing.
func (m *Matcher) regexHit(win types.WindowInfo, c *types.InstanceRecord) bool {
	pattern := c.TitleRegex
	if pattern == "" && m.patterns != nil {
		pattern = m.patterns.TitlePattern(win.Class)
	}
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(win.Title)
}

func (m *Matcher) bind(rec *types.InstanceRecord, win types.WindowInfo) {
	rec.Assigned = true
	rec.Sequence = win.Sequence
	if win.StableID != "" {
		rec.WindowID = win.StableID
	}
	if win.Title != "" {
		rec.Title = win.Title
	}
}

func (m *Matcher) count(outcome string) {
	if m.metrics != nil {
		m.metrics.MatchOutcomes.WithLabelValues(outcome).Inc()
	}
}

func newRecord(win types.WindowInfo) *types.InstanceRecord {
	frame := win.Frame
	return &types.InstanceRecord{
		ID:           id.NewInstanceID().String(),
		Sequence:     win.Sequence,
		WindowID:     win.StableID,
		Title:        win.Title,
		Workspace:    win.Workspace,
		MonitorID:    win.MonitorID,
		MonitorIndex: win.MonitorIndex,
		AbsoluteGeom: &frame,
		Flags:        win.Flags,
		Assigned:     true,
	}
}

// segmentMatch compares the second-to-last " - " segment of both titles:
// editors and IDEs keep the project name there while the leading file part
// churns.
func segmentMatch(a, b string) bool {
	sa := strings.Split(a, " - ")
	sb := strings.Split(b, " - ")
	if len(sa) < 2 || len(sb) < 2 {
		return false
	}
	seg := strings.TrimSpace(sa[len(sa)-2])
	return seg != "" && seg == strings.TrimSpace(sb[len(sb)-2])
}

// fuzzySimilarity returns a normalized edit-distance similarity in [0,1].
// It is computed only when both titles exceed the length floor and their
// lengths are within the ratio bound; anything else returns 0 without
// touching the distance computation.
func fuzzySimilarity(a, b string) float64 {
	la, lb := len(a), len(b)
	if la <= fuzzyMinLen || lb <= fuzzyMinLen {
		return 0
	}
	longer, shorter := la, lb
	if shorter > longer {
		longer, shorter = shorter, longer
	}
	if float64(longer)/float64(shorter) > fuzzyMaxLenRatio {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)
	sim := 1.0 - float64(dist)/float64(longer)
	if sim < 0 {
		return 0
	}
	return sim
}
