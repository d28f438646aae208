package alphavantage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kennydoit/fin-trade-craft-sub001/internal/util"
)

// Listing states accepted by the LISTING_STATUS endpoint.
const (
	ListingStateActive   = "active"
	ListingStateDelisted = "delisted"
)

// ListingStatusEntry represents a row from the LISTING_STATUS CSV endpoint
type ListingStatusEntry struct {
	Symbol        string
	Name          string
	Exchange      string
	AssetType     string
	IPODate       *time.Time
	DelistingDate *time.Time
	Status        string
}

// GetListingStatus fetches and parses the LISTING_STATUS CSV. state is
// ListingStateActive or ListingStateDelisted.
func (c *Client) GetListingStatus(ctx context.Context, state string) ([]ListingStatusEntry, error) {
	log.Debugf("GetListingStatus %s begins", state)
	params := url.Values{}
	params.Set("function", "LISTING_STATUS")
	params.Set("state", state)

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing status: %w", err)
	}

	entries, err := parseListingStatusCSV(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	log.Debugf("GetListingStatus %s: %d entries", state, len(entries))
	return entries, nil
}

// parseListingStatusCSV parses the CSV response from LISTING_STATUS endpoint
// Expected columns: symbol,name,exchange,assetType,ipoDate,delistingDate,status
func parseListingStatusCSV(r io.Reader) ([]ListingStatusEntry, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIdx := make(map[string]int)
	for i, col := range header {
		colIdx[col] = i
	}

	requiredCols := []string{"symbol", "name", "exchange", "assetType", "ipoDate", "delistingDate", "status"}
	for _, col := range requiredCols {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var entries []ListingStatusEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		entries = append(entries, ListingStatusEntry{
			Symbol:        record[colIdx["symbol"]],
			Name:          record[colIdx["name"]],
			Exchange:      record[colIdx["exchange"]],
			AssetType:     record[colIdx["assetType"]],
			Status:        record[colIdx["status"]],
			IPODate:       util.ParseVendorDate(record[colIdx["ipoDate"]]),
			DelistingDate: util.ParseVendorDate(record[colIdx["delistingDate"]]),
		})
	}

	return entries, nil
}
