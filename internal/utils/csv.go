package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"candleBacktest/internal/domain"
)

var csvHeader = []string{"open_time", "close_time", "open", "high", "low", "close", "volume"}

// WriteCandlesToCSV writes candles to filename, creating parent directories.
// Times are written as epoch milliseconds so the file reads back exactly.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteCandles(file, candles); err != nil {
		return err
	}
	return file.Close()
}

// WriteCandles writes a header row and one row per candle to w.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			strconv.FormatInt(c.OpenTime, 10),
			strconv.FormatInt(c.CloseTime, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandles parses rows written by WriteCandles. Rows that are short or
// unparseable become placeholder candles; their line numbers are returned.
func ReadCandles(r io.Reader) ([]domain.Candle, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var candles []domain.Candle
	var malformed []int
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && len(record) > 0 && record[0] == csvHeader[0] {
			continue
		}

		c, ok := parseRecord(record)
		if !ok {
			malformed = append(malformed, line)
			c = domain.Placeholder()
		}
		candles = append(candles, c)
	}
	return candles, malformed, nil
}

func parseRecord(record []string) (domain.Candle, bool) {
	if len(record) < len(csvHeader) {
		return domain.Candle{}, false
	}
	openTime, err1 := strconv.ParseInt(record[0], 10, 64)
	closeTime, err2 := strconv.ParseInt(record[1], 10, 64)
	if err1 != nil || err2 != nil {
		return domain.Candle{}, false
	}
	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(record[i+2], 64)
		if err != nil {
			return domain.Candle{}, false
		}
		values[i] = v
	}
	return domain.Candle{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, true
}
