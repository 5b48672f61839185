// Package databento serves daily bars from Databento OHLCV-1D files on
// local disk, one file per symbol named <SYMBOL>.ohlcv-1d.dbn[.zst].
package databento

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dbn "github.com/NimbleMarkets/dbn-go"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/logger"
)

// fixed-point price scale used by DBN records
const pxScale = 1_000_000_000.0

const fileSuffix = ".ohlcv-1d.dbn"

// ErrNoFile is returned when a symbol has no DBN file in the directory
var ErrNoFile = errors.New("no dbn file for symbol")

// Reader loads bars from a directory of DBN files
// ⭐ SSOT: Databento 파일 파싱은 이 패키지에서만
type Reader struct {
	dir    string
	logger *logger.Logger
}

// NewReader creates a reader over dir
func NewReader(dir string, log *logger.Logger) *Reader {
	return &Reader{dir: dir, logger: log.WithField("source", "databento")}
}

// path finds the file for a symbol, preferring the zstd variant
func (r *Reader) path(symbol string) (string, bool, error) {
	base := filepath.Join(r.dir, strings.ToUpper(symbol)+fileSuffix)
	if _, err := os.Stat(base + ".zst"); err == nil {
		return base + ".zst", true, nil
	}
	if _, err := os.Stat(base); err == nil {
		return base, false, nil
	}
	return "", false, fmt.Errorf("%s: %w", symbol, ErrNoFile)
}

// ReadBars returns bars for one symbol in [from, to]; zero bounds are open
func (r *Reader) ReadBars(symbol string, from, to time.Time) ([]contracts.Bar, error) {
	path, useZstd, err := r.path(symbol)
	if err != nil {
		return nil, err
	}

	reader, closer, err := dbn.MakeCompressedReader(path, useZstd)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer closer.Close()

	visitor := &barVisitor{from: contracts.Day(from), to: contracts.Day(to), hasFrom: !from.IsZero(), hasTo: !to.IsZero()}
	scanner := dbn.NewDbnScanner(reader)
	for scanner.Next() {
		if err := scanner.Visit(visitor); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := scanner.Error(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return contracts.SortBars(visitor.bars), nil
}

// Symbols lists the symbols with a file in the directory, sorted
func (r *Reader) Symbols() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", r.dir, err)
	}

	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".zst")
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSuffix(name, fileSuffix))
		if sym != "" && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetUniverse reports every file in the directory as a universe member
func (r *Reader) GetUniverse(_ context.Context) ([]contracts.SymbolMeta, error) {
	syms, err := r.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]contracts.SymbolMeta, len(syms))
	for i, s := range syms {
		out[i] = contracts.SymbolMeta{Symbol: s}
	}
	return out, nil
}

// GetOHLCV reads each symbol's file; failures are joined and the rest returned
func (r *Reader) GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	out := make(map[string][]contracts.Bar, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		bars, err := r.ReadBars(sym, from, to)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[sym] = bars
	}
	return out, errors.Join(errs...)
}

// GetIndexBars reads the benchmark's file
func (r *Reader) GetIndexBars(_ context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	return r.ReadBars(ticker, from, to)
}

// Ping checks the directory is readable
func (r *Reader) Ping(_ context.Context) error {
	_, err := os.ReadDir(r.dir)
	return err
}

// barVisitor collects OHLCV records; every other record type is ignored
type barVisitor struct {
	from, to       time.Time
	hasFrom, hasTo bool
	bars           []contracts.Bar
}

func (v *barVisitor) OnOhlcv(r *dbn.OhlcvMsg) error {
	date := contracts.Day(time.Unix(0, int64(r.Header.TsEvent)))
	if v.hasFrom && date.Before(v.from) {
		return nil
	}
	if v.hasTo && date.After(v.to) {
		return nil
	}
	if r.Close <= 0 {
		return nil
	}
	v.bars = append(v.bars, contracts.Bar{
		Date:   date,
		Open:   float64(r.Open) / pxScale,
		High:   float64(r.High) / pxScale,
		Low:    float64(r.Low) / pxScale,
		Close:  float64(r.Close) / pxScale,
		Volume: int64(r.Volume),
	})
	return nil
}

func (v *barVisitor) OnMbp0(*dbn.Mbp0Msg) error                      { return nil }
func (v *barVisitor) OnMbp1(*dbn.Mbp1Msg) error                      { return nil }
func (v *barVisitor) OnMbp10(*dbn.Mbp10Msg) error                    { return nil }
func (v *barVisitor) OnMbo(*dbn.MboMsg) error                        { return nil }
func (v *barVisitor) OnCmbp1(*dbn.Cmbp1Msg) error                    { return nil }
func (v *barVisitor) OnBbo(*dbn.BboMsg) error                        { return nil }
func (v *barVisitor) OnImbalance(*dbn.ImbalanceMsg) error            { return nil }
func (v *barVisitor) OnStatMsg(*dbn.StatMsg) error                   { return nil }
func (v *barVisitor) OnStatusMsg(*dbn.StatusMsg) error               { return nil }
func (v *barVisitor) OnInstrumentDefMsg(*dbn.InstrumentDefMsg) error { return nil }
func (v *barVisitor) OnErrorMsg(*dbn.ErrorMsg) error                 { return nil }
func (v *barVisitor) OnSystemMsg(*dbn.SystemMsg) error               { return nil }
func (v *barVisitor) OnSymbolMappingMsg(*dbn.SymbolMappingMsg) error { return nil }
func (v *barVisitor) OnStreamEnd() error                             { return nil }
