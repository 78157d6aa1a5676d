package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DNSRecord is a remote DNS record.
type DNSRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
}

// EnsureOutcome is the three-way result of EnsureCNAME. Callers rely on it
// to summarize batch reconciliations as created/updated/skipped counts.
type EnsureOutcome string

const (
	EnsureCreated EnsureOutcome = "created"
	EnsureUpdated EnsureOutcome = "updated"
	EnsureSkipped EnsureOutcome = "skipped"
)

// ListDNSRecords fetches the zone's records, optionally filtered by exact
// name. The filter deliberately spans all record types so conflicting
// non-CNAME owners of a name are seen.
func (c *Client) ListDNSRecords(ctx context.Context, zoneID, name string) ([]DNSRecord, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	var records []DNSRecord
	err := c.listAll(ctx, "/zones/"+zoneID+"/dns_records", query, func(result json.RawMessage) error {
		var page []DNSRecord
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode dns records: %w", err)
		}
		records = append(records, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// EnsureCNAME makes the CNAME at name point at target, idempotently:
// absent → create (proxied, auto TTL); present with the same content →
// skip; present with different content → update in place. A non-CNAME
// record at the name is a hard conflict and is never overwritten.
func (c *Client) EnsureCNAME(ctx context.Context, zoneID, name, target string) (EnsureOutcome, error) {
	records, err := c.ListDNSRecords(ctx, zoneID, name)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		_, err := c.CreateRecord(ctx, zoneID, DNSRecord{
			Type:    "CNAME",
			Name:    name,
			Content: target,
			Proxied: true,
			TTL:     1, // auto
		})
		if err != nil {
			return "", err
		}
		return EnsureCreated, nil
	}

	for _, rec := range records {
		if rec.Type != "CNAME" {
			return "", &RecordConflictError{Name: name, Type: rec.Type}
		}
	}

	existing := records[0]
	if existing.Content == target {
		return EnsureSkipped, nil
	}

	existing.Content = target
	if _, err := c.UpdateRecord(ctx, zoneID, existing.ID, existing); err != nil {
		return "", err
	}
	return EnsureUpdated, nil
}

// CreateRecord creates a record in the zone.
func (c *Client) CreateRecord(ctx context.Context, zoneID string, rec DNSRecord) (*DNSRecord, error) {
	var out DNSRecord
	if err := c.do(ctx, http.MethodPost, "/zones/"+zoneID+"/dns_records", nil, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRecord replaces a record by its remote ID.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID string, rec DNSRecord) (*DNSRecord, error) {
	var out DNSRecord
	if err := c.do(ctx, http.MethodPut, "/zones/"+zoneID+"/dns_records/"+recordID, nil, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRecord removes a record by its remote ID, reporting success as a
// boolean rather than an error.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) bool {
	err := c.do(ctx, http.MethodDelete, "/zones/"+zoneID+"/dns_records/"+recordID, nil, nil, nil)
	return err == nil
}
