// Package asset provides the value-transfer capability used by the ledgers:
// asset symbol parsing, a multi-asset balance bank, and per-engine custody
// handles exposing TransferIn / TransferOut.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atmx/ledger-engine/internal/model"
)

// symbolRegex matches an upper-case symbol: a letter followed by 1-15
// letters or digits. Example: MTKA
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,15}$`)

// pairRegex matches {sell}-{buy}. Example: MTKA-MTKB
var pairRegex = regexp.MustCompile(`^([A-Z][A-Z0-9]{1,15})-([A-Z][A-Z0-9]{1,15})$`)

var (
	ErrInvalidSymbol = errors.New("asset: invalid symbol")
	ErrInvalidPair   = errors.New("asset: invalid pair")
	ErrSameAsset     = errors.New("asset: pair sides must differ")
)

// Pair is a directed swap pair: Sell is paid in, Buy is paid out.
type Pair struct {
	Sell model.Asset `json:"sell"`
	Buy  model.Asset `json:"buy"`
}

// String returns the canonical SELL-BUY form.
func (p Pair) String() string {
	return string(p.Sell) + "-" + string(p.Buy)
}

// ParseSymbol validates and normalizes an asset symbol.
func ParseSymbol(s string) (model.Asset, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return model.Asset(s), nil
}

// ParsePair parses and validates a pair string.
// Format: {sell}-{buy}
func ParsePair(s string) (Pair, error) {
	matches := pairRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if matches == nil {
		return Pair{}, fmt.Errorf("%w: %s (expected {sell}-{buy})", ErrInvalidPair, s)
	}
	if matches[1] == matches[2] {
		return Pair{}, fmt.Errorf("%w: %s", ErrSameAsset, s)
	}
	return Pair{Sell: model.Asset(matches[1]), Buy: model.Asset(matches[2])}, nil
}
