// Package harvest runs the eCalc setup finder and collects the candidate
// setups from its virtualized result grid.
package harvest

import (
	"context"
	"errors"
	"iter"
	"path"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/records"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

var (
	// ErrSearchNotTriggered means none of the known search controls was found.
	ErrSearchNotTriggered = errors.New("setup finder search control not found")
	// ErrConsumed is yielded when a harvest sequence is ranged over twice.
	ErrConsumed = errors.New("harvest sequence already consumed")
)

// Diagnostic snapshot names.
const (
	SnapshotNoButton  = "debug_setupfinder_nobtn.html"
	SnapshotNoResults = "debug_setupfinder_noresults.html"
)

const (
	cookieClose    = ".cookieinfo-close"
	modalConfirm   = "#modalConfirm"
	modalConfirmOK = "#modalConfirmOk"
	resultMarker   = "recid"
	scrollPages    = 2
)

// searchTriggers are tried in order until one can be clicked.
var searchTriggers = []struct {
	selector string
	text     string
}{
	{selector: "span[onclick*='calculate']"},
	{selector: ":has(> #btnFindSetup)"},
	{selector: "button", text: "Calculate"},
	{selector: "input[type='submit']"},
}

// EffectiveLimit is how many rows to harvest so that limit candidates
// survive filtering.
func EffectiveLimit(limit int, filtering bool) int {
	if filtering {
		return max(1000, limit*5)
	}
	return max(50, limit)
}

// Harvester drives the setup finder.
type Harvester struct {
	cfg    config.HarvestConfig
	parser records.Parser
	snap   browser.Snapshotter
	logger *zap.Logger
}

// New returns a Harvester using the default metadata parser.
func New(cfg config.HarvestConfig, snap browser.Snapshotter, logger *zap.Logger) *Harvester {
	return &Harvester{
		cfg:    cfg,
		parser: records.DefaultParser,
		snap:   snap,
		logger: logger.Named("harvest"),
	}
}

// Harvest collects up to limit unique candidates. An empty result with a nil
// error is a valid outcome.
func (h *Harvester) Harvest(ctx context.Context, sess *session.Session, in Inputs, limit int) ([]records.CandidateRecord, error) {
	var out []records.CandidateRecord
	for rec, err := range h.Stream(ctx, sess, in, limit) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	h.logger.Info("Harvest finished.", zap.Int("setups", len(out)))
	return out, nil
}

// Stream runs the search and lazily yields unique candidates in the order
// they first appear in the grid. The sequence is finite and may be ranged
// over once; a second range yields ErrConsumed. A non-nil error is always the
// last element.
func (h *Harvester) Stream(ctx context.Context, sess *session.Session, in Inputs, limit int) iter.Seq2[records.CandidateRecord, error] {
	var used atomic.Bool
	return func(yield func(records.CandidateRecord, error) bool) {
		if used.Swap(true) {
			yield(records.CandidateRecord{}, ErrConsumed)
			return
		}
		if limit <= 0 {
			return
		}
		ready, err := h.search(ctx, sess, in)
		if err != nil {
			yield(records.CandidateRecord{}, err)
			return
		}
		if !ready {
			return
		}
		h.scan(ctx, sess.Page(), limit, yield)
	}
}

// search opens the setup finder, fills it and starts the search. It reports
// false when no search control could be clicked.
func (h *Harvester) search(ctx context.Context, sess *session.Session, in Inputs) (bool, error) {
	p := sess.Page()
	target := sess.Config().SearchURL()

	sess.EnsureValid(ctx)
	h.logger.Info("Opening setup finder.", zap.String("url", target))
	if err := p.Navigate(ctx, target); err != nil {
		return false, err
	}
	if u, err := p.URL(ctx); err == nil && !strings.Contains(u, path.Base(target)) {
		h.logger.Warn("Redirected away from the setup finder, returning.", zap.String("url", u))
		sess.EnsureValid(ctx)
		if err := p.Navigate(ctx, target); err != nil {
			return false, err
		}
	}

	if err := h.fillForm(ctx, p, in); err != nil {
		return false, err
	}
	h.dismissOverlays(ctx, p)

	if err := h.trigger(ctx, p); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		h.logger.Error("Failed to start the search.", zap.Error(err))
		h.snapshot(ctx, p, SnapshotNoButton)
		return false, nil
	}

	h.logger.Info("Waiting for results.", zap.Duration("settle", h.cfg.SearchSettle))
	if err := browser.Sleep(ctx, h.cfg.SearchSettle); err != nil {
		return false, err
	}
	if html, err := p.Content(ctx); err == nil && !strings.Contains(html, resultMarker) {
		h.logger.Warn("No result rows after settle, results may be empty or still loading.")
		h.snapshot(ctx, p, SnapshotNoResults)
	}
	return true, nil
}

func (h *Harvester) dismissOverlays(ctx context.Context, p browser.Page) {
	if ok, _ := p.Exists(ctx, cookieClose); ok {
		h.logger.Debug("Closing cookie info.")
		_ = p.Click(ctx, cookieClose)
		_ = browser.Sleep(ctx, h.cfg.KeyInterval)
	}
	if ok, _ := p.Visible(ctx, modalConfirm); ok {
		h.logger.Info("Accepting confirmation modal.")
		_ = p.Click(ctx, modalConfirmOK)
		_ = browser.Sleep(ctx, h.cfg.FlightPlanSettle)
	}
}

func (h *Harvester) trigger(ctx context.Context, p browser.Page) error {
	for _, t := range searchTriggers {
		var err error
		if t.text != "" {
			if ok, _ := p.HasText(ctx, t.selector, t.text); !ok {
				continue
			}
			err = p.ClickText(ctx, t.selector, t.text)
		} else {
			if ok, _ := p.Exists(ctx, t.selector); !ok {
				continue
			}
			err = p.Click(ctx, t.selector)
		}
		if err != nil {
			h.logger.Debug("Search control click failed.", zap.String("selector", t.selector), zap.Error(err))
			continue
		}
		h.logger.Info("Search started.", zap.String("selector", t.selector))
		return nil
	}
	return ErrSearchNotTriggered
}

// scan reads the rendered grid rows pass by pass. It stops when limit is
// reached, when a pass finds nothing new even after a jump to the end, or
// after MaxPages passes.
func (h *Harvester) scan(ctx context.Context, p browser.Page, limit int, yield func(records.CandidateRecord, error) bool) {
	seen := make(map[records.Key]struct{})
	count := 0
	jumped := false

	for pass := 1; ; pass++ {
		html, err := h.gridHTML(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				yield(records.CandidateRecord{}, ctx.Err())
				return
			}
			h.logger.Warn("Could not read result grid.", zap.Error(err))
			return
		}
		titles, err := ParseTitles(html)
		if err != nil {
			yield(records.CandidateRecord{}, err)
			return
		}

		fresh := 0
		for i, title := range titles {
			rec, ok := h.parser.Parse(title)
			if !ok {
				h.logger.Debug("Skipping row with too few metadata values.", zap.Int("row", i))
				continue
			}
			key := rec.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			fresh++
			count++
			if !yield(rec, nil) {
				return
			}
			if count >= limit {
				h.logger.Info("Reached harvest limit.", zap.Int("limit", limit))
				return
			}
		}
		h.logger.Info("Scanned result page.",
			zap.Int("page", pass), zap.Int("rows", len(titles)), zap.Int("new", fresh), zap.Int("total", count))

		if pass >= h.cfg.MaxPages {
			h.logger.Warn("Stopping at page ceiling.", zap.Int("max_pages", h.cfg.MaxPages))
			return
		}

		if fresh == 0 {
			if jumped {
				return
			}
			jumped = true
			h.logger.Debug("No new rows, jumping to the end once.")
			if err := p.Press(ctx, browser.KeyEnd); err != nil {
				h.logger.Warn("End key failed.", zap.Error(err))
				return
			}
		} else {
			jumped = false
			if err := h.advance(ctx, p, pass == 1); err != nil {
				if ctx.Err() != nil {
					yield(records.CandidateRecord{}, ctx.Err())
				} else {
					h.logger.Warn("Scrolling failed.", zap.Error(err))
				}
				return
			}
		}
		if err := browser.Sleep(ctx, h.cfg.ScrollSettle); err != nil {
			yield(records.CandidateRecord{}, err)
			return
		}
	}
}

// advance moves the virtualized viewport down with keyboard paging and a
// scripted scroll of the grid container.
func (h *Harvester) advance(ctx context.Context, p browser.Page, first bool) error {
	if first {
		if err := p.Click(ctx, lastRowSelector); err != nil {
			if err := p.Click(ctx, gridSelector); err != nil {
				_ = p.Click(ctx, "body")
			}
		}
	}
	for range h.cfg.PageDownPresses {
		if err := p.Press(ctx, browser.KeyPageDown); err != nil {
			return err
		}
		if err := browser.Sleep(ctx, h.cfg.KeyInterval); err != nil {
			return err
		}
	}
	return p.ScrollBy(ctx, gridSelector, scrollPages)
}

func (h *Harvester) gridHTML(ctx context.Context, p browser.Page) (string, error) {
	html, err := p.OuterHTML(ctx, gridSelector)
	if err == nil {
		return html, nil
	}
	if !errors.Is(err, browser.ErrNotFound) {
		return "", err
	}
	return p.Content(ctx)
}

func (h *Harvester) snapshot(ctx context.Context, p browser.Page, name string) {
	file, err := h.snap.Write(ctx, p, name)
	if err != nil {
		h.logger.Warn("Could not write diagnostic snapshot.", zap.String("name", name), zap.Error(err))
		return
	}
	h.logger.Info("Wrote diagnostic snapshot.", zap.String("path", file))
}
