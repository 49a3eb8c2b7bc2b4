package epubreplace

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tokenSeparator delimits tokens in a search or replacement specification.
const tokenSeparator = ","

// Mode selects how the pairs of a Plan interact when applied to one string.
type Mode int

const (
	// ModeSequential applies pairs one after another, each over the output
	// of the previous one. A later pair can match text produced by an
	// earlier pair's replacement.
	ModeSequential Mode = iota

	// ModeSimultaneous performs a single left-to-right pass in which every
	// pair competes for each position. Replacement text is never rescanned.
	ModeSimultaneous
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeSimultaneous:
		return "simultaneous"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration name into a Mode. The empty string
// selects ModeSequential.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return ModeSequential, nil
	case "simultaneous":
		return ModeSimultaneous, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Pair is one search/replacement substitution.
type Pair struct {
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

// PlanOptions controls how a Plan is built.
type PlanOptions struct {
	// Mode selects sequential or simultaneous application.
	Mode Mode

	// NormalizeNFC normalizes every token to Unicode NFC before pairing.
	// Book text itself is never normalized.
	NormalizeNFC bool
}

// Plan is an ordered, immutable sequence of replacement pairs.
// A Plan is safe for concurrent use.
type Plan struct {
	pairs []Pair
	mode  Mode
}

// ParsePlan splits comma-delimited search and replacement specifications
// and aligns them with NewPlan. Tokens are taken verbatim; surrounding
// whitespace is significant.
func ParsePlan(searchSpec, replaceSpec string, opts PlanOptions) (*Plan, error) {
	return NewPlan(splitTokens(searchSpec), splitTokens(replaceSpec), opts)
}

// NewPlan aligns search and replacement tokens into pairs:
//   - equal lengths pair element-wise;
//   - a single search token with several replacements is broadcast, so
//     every pair shares that search token;
//   - any other combination fails with ErrUnsupportedReplacementShape.
//
// Empty search tokens fail with ErrEmptySearchToken.
func NewPlan(search, replace []string, opts PlanOptions) (*Plan, error) {
	if opts.Mode != ModeSequential && opts.Mode != ModeSimultaneous {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, opts.Mode)
	}
	if len(search) == 0 || len(replace) == 0 {
		return nil, ErrEmptyPlan
	}

	search = normalizeTokens(search, opts.NormalizeNFC)
	replace = normalizeTokens(replace, opts.NormalizeNFC)

	for i, s := range search {
		if s == "" {
			return nil, fmt.Errorf("%w: position %d", ErrEmptySearchToken, i)
		}
	}

	var pairs []Pair
	switch {
	case len(search) == len(replace):
		pairs = make([]Pair, len(search))
		for i := range search {
			pairs[i] = Pair{Search: search[i], Replace: replace[i]}
		}
	case len(search) == 1 && len(replace) > 1:
		pairs = make([]Pair, len(replace))
		for i := range replace {
			pairs[i] = Pair{Search: search[0], Replace: replace[i]}
		}
	default:
		return nil, fmt.Errorf("%w: %d search tokens, %d replacement tokens",
			ErrUnsupportedReplacementShape, len(search), len(replace))
	}

	return &Plan{pairs: pairs, mode: opts.Mode}, nil
}

// DeletionPlan pairs every search token with the empty string.
func DeletionPlan(searchSpec string, opts PlanOptions) (*Plan, error) {
	search := splitTokens(searchSpec)
	return NewPlan(search, make([]string, len(search)), opts)
}

// Pairs returns a copy of the plan's pairs in application order.
func (p *Plan) Pairs() []Pair {
	return append([]Pair(nil), p.pairs...)
}

// Mode returns the plan's matching mode.
func (p *Plan) Mode() Mode {
	return p.mode
}

// WithMode returns a copy of the plan that applies its pairs in mode m.
func (p *Plan) WithMode(m Mode) (*Plan, error) {
	if m != ModeSequential && m != ModeSimultaneous {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, m)
	}
	return &Plan{pairs: p.pairs, mode: m}, nil
}

// WithNFC returns a copy of the plan whose tokens are normalized to
// Unicode NFC.
func (p *Plan) WithNFC() *Plan {
	pairs := make([]Pair, len(p.pairs))
	for i, pair := range p.pairs {
		pairs[i] = Pair{Search: norm.NFC.String(pair.Search), Replace: norm.NFC.String(pair.Replace)}
	}
	return &Plan{pairs: pairs, mode: p.mode}
}

// Len returns the number of pairs.
func (p *Plan) Len() int {
	return len(p.pairs)
}

// Apply runs the plan over s and returns the rewritten string together with
// the number of substitutions performed.
func (p *Plan) Apply(s string) (string, int) {
	if p.mode == ModeSimultaneous {
		return replaceSimultaneous(s, p.pairs)
	}
	total := 0
	for _, pair := range p.pairs {
		var n int
		s, n = replaceWord(s, pair.Search, pair.Replace)
		total += n
	}
	return s, total
}

func splitTokens(spec string) []string {
	return strings.Split(spec, tokenSeparator)
}

func normalizeTokens(tokens []string, nfc bool) []string {
	if !nfc {
		return tokens
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = norm.NFC.String(t)
	}
	return out
}
