package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseOptions reads the options of a serialized <select>.
func ParseOptions(selectHTML string) ([]Option, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(selectHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing select: %w", err)
	}
	var opts []Option
	doc.Find("option").Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Text())
		value, ok := s.Attr("value")
		if !ok {
			value = label
		}
		_, disabled := s.Attr("disabled")
		_, selected := s.Attr("selected")
		opts = append(opts, Option{Value: value, Label: label, Disabled: disabled, Selected: selected})
	})
	return opts, nil
}

// FindOption returns the first option whose label equals label after
// trimming, falling back to the first case-insensitive substring match.
func FindOption(opts []Option, label string) (Option, bool) {
	want := strings.TrimSpace(label)
	for _, o := range opts {
		if o.Label == want {
			return o, true
		}
	}
	lower := strings.ToLower(want)
	if lower == "" {
		return Option{}, false
	}
	for _, o := range opts {
		if strings.Contains(strings.ToLower(o.Label), lower) {
			return o, true
		}
	}
	return Option{}, false
}

// SelectLabel selects the option found by FindOption.
func SelectLabel(ctx context.Context, p Page, selector, label string) (Option, error) {
	opts, err := p.Options(ctx, selector)
	if err != nil {
		return Option{}, err
	}
	opt, ok := FindOption(opts, label)
	if !ok {
		return Option{}, fmt.Errorf("%s label %q: %w", selector, label, ErrOptionNotFound)
	}
	if err := p.SelectValue(ctx, selector, opt.Value); err != nil {
		return Option{}, err
	}
	return opt, nil
}

// SelectValueOrLabel selects by option value first, then by label.
func SelectValueOrLabel(ctx context.Context, p Page, selector, value, label string) (Option, error) {
	opts, err := p.Options(ctx, selector)
	if err != nil {
		return Option{}, err
	}
	if value != "" {
		for _, o := range opts {
			if o.Value == value {
				return o, p.SelectValue(ctx, selector, o.Value)
			}
		}
	}
	opt, ok := FindOption(opts, label)
	if !ok {
		return Option{}, fmt.Errorf("%s value %q / label %q: %w", selector, value, label, ErrOptionNotFound)
	}
	return opt, p.SelectValue(ctx, selector, opt.Value)
}
