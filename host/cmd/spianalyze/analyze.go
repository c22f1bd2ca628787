package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

var errNoTransitions = errors.New("capture channel has no transitions")

// transaction is one chip-select window
type transaction struct {
	Start float64 // Seconds from capture start
	SDO   []byte
	SDI   []byte // nil without an SDI capture
}

func loadCapture(csName, clkName, sdoName, sdiName string) ([]transaction, error) {
	cs, err := openDigital(csName)
	if err != nil {
		return nil, err
	}
	clk, err := openDigital(clkName)
	if err != nil {
		return nil, err
	}
	sdo, err := openDigital(sdoName)
	if err != nil {
		return nil, err
	}
	var sdi *saleae.DigitalFile
	if sdiName != "" {
		if sdi, err = openDigital(sdiName); err != nil {
			return nil, err
		}
	}
	return decode(clk, cs, sdo, sdi)
}

func openDigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return df, nil
}

// decode runs the SPI analyzer over one capture. Without an SDI channel the
// SDO channel stands in for it and no SDI bytes are reported.
func decode(clk, cs, sdo, sdi *saleae.DigitalFile) ([]transaction, error) {
	miso := sdi
	if miso == nil {
		miso = sdo
	}
	for _, ch := range []*saleae.DigitalFile{clk, cs, sdo, miso} {
		if len(ch.Data) == 0 {
			return nil, errNoTransitions
		}
	}
	spi := analyzers.SPI{}
	txs, err := spi.Scan(clk, cs, sdo, miso)
	if err != nil {
		return nil, err
	}
	out := make([]transaction, len(txs))
	for i, tx := range txs {
		out[i] = transaction{Start: tx.StartTime(), SDO: tx.SDO}
		if sdi != nil {
			out[i].SDI = tx.SDI
		}
	}
	return out, nil
}

type reportOptions struct {
	Limit int
	Stats bool
}

func writeReport(w io.Writer, txs []transaction, opts reportOptions) error {
	n := len(txs)
	if opts.Limit > 0 {
		n = clamp(opts.Limit, 0, n)
	}
	for i, tx := range txs[:n] {
		line := fmt.Sprintf("%4d t=%.6f len=%-3d sdo=% x", i, tx.Start, len(tx.SDO), tx.SDO)
		if tx.SDI != nil {
			line += fmt.Sprintf(" sdi=% x", tx.SDI)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if !opts.Stats {
		return nil
	}
	s := summarize(txs)
	_, err := fmt.Fprintf(w, "transactions=%d bytes=%d longest=%d gap mean=%.6fs std=%.6fs min=%.6fs max=%.6fs\n",
		s.Count, s.Bytes, s.Longest, s.GapMean, s.GapStd, s.GapMin, s.GapMax)
	return err
}

// summary describes a capture. Gap fields are zero with fewer than two
// transactions.
type summary struct {
	Count   int
	Bytes   int
	Longest int
	GapMean float64
	GapStd  float64
	GapMin  float64
	GapMax  float64
}

func summarize(txs []transaction) summary {
	s := summary{Count: len(txs)}
	lengths := make([]int, len(txs))
	for i, tx := range txs {
		lengths[i] = len(tx.SDO)
		s.Bytes += len(tx.SDO)
	}
	if len(lengths) > 0 {
		s.Longest = maxOf(lengths)
	}
	if len(txs) < 2 {
		return s
	}
	gaps := make([]float64, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		gaps[i-1] = txs[i].Start - txs[i-1].Start
	}
	s.GapMean, s.GapStd = stat.MeanStdDev(gaps, nil)
	s.GapMin = minOf(gaps)
	s.GapMax = maxOf(gaps)
	return s
}

func minOf[T constraints.Ordered](v []T) T {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf[T constraints.Ordered](v []T) T {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
