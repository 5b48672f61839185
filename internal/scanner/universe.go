package scanner

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/strategyconfig"
)

// UniverseAll selects every stored symbol
const UniverseAll = "all"

// universe source values
const sourceProvider = "provider"

// checkUniverse rejects unknown tags before any work starts
func checkUniverse(cfg *strategyconfig.Config, tag string) error {
	if tag == "" || tag == UniverseAll {
		return nil
	}
	if _, ok := cfg.Universe(tag); !ok {
		return fmt.Errorf("%q: %w", tag, ErrUnknownUniverse)
	}
	return nil
}

// resolveUniverse expands a tag into symbol metadata.
// "all" reads the stored universe, refreshing it from the provider once when empty.
func (s *Scanner) resolveUniverse(ctx context.Context, cfg *strategyconfig.Config, tag string, p contracts.MarketDataProvider) ([]contracts.SymbolMeta, error) {
	if err := checkUniverse(cfg, tag); err != nil {
		return nil, err
	}

	if tag == "" || tag == UniverseAll {
		stored, err := s.storedOrRefreshed(ctx, p)
		if err != nil {
			return nil, err
		}
		return nonEmpty(tag, stored)
	}

	def, _ := cfg.Universe(tag)

	if len(def.Symbols) > 0 {
		stored, err := s.store.ListSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		known := indexMeta(stored)

		out := make([]contracts.SymbolMeta, 0, len(def.Symbols))
		seen := make(map[string]bool, len(def.Symbols))
		for _, sym := range def.Symbols {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			if m, ok := known[sym]; ok {
				out = append(out, m)
			} else {
				out = append(out, contracts.SymbolMeta{Symbol: sym})
			}
		}
		return nonEmpty(tag, out)
	}

	var base []contracts.SymbolMeta
	var err error
	if def.Source == sourceProvider {
		base, err = p.GetUniverse(ctx)
		if err != nil {
			return nil, fmt.Errorf("provider universe for %q: %w", tag, err)
		}
	} else {
		base, err = s.storedOrRefreshed(ctx, p)
		if err != nil {
			return nil, err
		}
	}
	return nonEmpty(tag, def.Filter(base))
}

func (s *Scanner) storedOrRefreshed(ctx context.Context, p contracts.MarketDataProvider) ([]contracts.SymbolMeta, error) {
	stored, err := s.store.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	if len(stored) > 0 || !p.Capabilities().Universe {
		return stored, nil
	}

	if _, err := s.refreshFrom(ctx, p); err != nil {
		return nil, err
	}
	return s.store.ListSymbols(ctx)
}

func indexMeta(meta []contracts.SymbolMeta) map[string]contracts.SymbolMeta {
	out := make(map[string]contracts.SymbolMeta, len(meta))
	for _, m := range meta {
		out[m.Symbol] = m
	}
	return out
}

func nonEmpty(tag string, meta []contracts.SymbolMeta) ([]contracts.SymbolMeta, error) {
	if len(meta) == 0 {
		if tag == "" {
			tag = UniverseAll
		}
		return nil, fmt.Errorf("universe %q: %w", tag, ErrEmptyUniverse)
	}
	return meta, nil
}

// RefreshUniverse replaces stored symbol metadata with the provider's list
func (s *Scanner) RefreshUniverse(ctx context.Context, providerName string) (int, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return 0, err
	}
	return s.refreshFrom(ctx, p)
}

func (s *Scanner) refreshFrom(ctx context.Context, p contracts.MarketDataProvider) (int, error) {
	meta, err := p.GetUniverse(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch universe from %s: %w", p.Name(), err)
	}
	// an empty answer is treated as a provider fault, not as "delist everything"
	if len(meta) == 0 {
		return 0, fmt.Errorf("provider %s returned an empty universe", p.Name())
	}

	if err := s.store.ReplaceSymbols(ctx, meta); err != nil {
		return 0, fmt.Errorf("replace symbols: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"provider": p.Name(),
		"count":    len(meta),
	}).Info("Universe refreshed")
	return len(meta), nil
}
