// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package soap executes operations against the municipal cadastral SOAP
// endpoint. Responses are decoded into a namespace-insensitive tree of
// maps, sequences, and strings; callers never see raw XML.
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

const (
	defaultMaxRetries    = 3
	defaultBackoffFactor = 1 * time.Second
	defaultBackoffMax    = 10 * time.Second
)

// Fault is a SOAP protocol fault returned by the service.
type Fault struct {
	Code   string
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// TransportError reports that every candidate operation name failed in
// every retry round. It wraps the last underlying cause.
type TransportError struct {
	Op     string
	Rounds int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("operation %s failed after %d round(s): %v", e.Op, e.Rounds, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Param is one request parameter. A Param either carries a scalar Value or
// nests Children (the "entrada" envelope of the general search).
type Param struct {
	Name     string
	Value    string
	Children []Param
}

// Client calls the cadastral SOAP service with retry and operation-name
// fallback. It is stateless across calls apart from the underlying HTTP
// connection pool and a request counter.
type Client struct {
	cfg      types.SOAPConfig
	http     *http.Client
	requests int
}

// NewClient builds a Client from cfg, applying defaults for unset retry
// and backoff settings.
func NewClient(cfg types.SOAPConfig, httpClient *http.Client) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Requests returns the number of HTTP calls issued so far.
func (c *Client) Requests() int { return c.requests }

// Call tries op and then each fallback, in order, once per retry round.
// Between failed rounds it sleeps BackoffFactor × round, capped at
// BackoffMax; the sleep is abandoned when ctx is cancelled. When every name
// fails in every round it returns a *TransportError carrying the last cause.
func (c *Client) Call(ctx context.Context, op string, fallbacks []string, params ...Param) (any, error) {
	ops := append([]string{op}, fallbacks...)

	var lastErr error
	for round := 1; round <= c.cfg.MaxRetries; round++ {
		for _, name := range ops {
			result, err := c.do(ctx, name, params)
			if err == nil {
				return result, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		}

		if round == c.cfg.MaxRetries {
			break
		}

		backoff := c.cfg.BackoffFactor * time.Duration(round)
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, &TransportError{Op: op, Rounds: c.cfg.MaxRetries, Err: lastErr}
}

// do performs a single SOAP 1.1 request for one operation name.
func (c *Client) do(ctx context.Context, op string, params []Param) (any, error) {
	body, err := buildEnvelope(op, params)
	if err != nil {
		return nil, fmt.Errorf("building request envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", op)
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	c.requests++
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	// Faults arrive as HTTP 500 with a fault body; decode before judging
	// the status code so the caller sees the fault detail.
	tree, decodeErr := DecodeResponse(resp.Body)
	if decodeErr != nil {
		var fault *Fault
		if errors.As(decodeErr, &fault) {
			return nil, fmt.Errorf("%s: %w", op, fault)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s: HTTP %d", op, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: %w", op, decodeErr)
	}
	return tree, nil
}

// buildEnvelope renders the SOAP 1.1 request body for op.
func buildEnvelope(op string, params []Param) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">`)
	b.WriteString("<soapenv:Body>")
	fmt.Fprintf(&b, "<%s>", op)
	for _, p := range params {
		if err := writeParam(&b, p); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(&b, "</%s>", op)
	b.WriteString("</soapenv:Body></soapenv:Envelope>")
	return b.Bytes(), nil
}

func writeParam(b *bytes.Buffer, p Param) error {
	fmt.Fprintf(b, "<%s>", p.Name)
	if len(p.Children) > 0 {
		for _, child := range p.Children {
			if err := writeParam(b, child); err != nil {
				return err
			}
		}
	} else if err := xml.EscapeText(b, []byte(p.Value)); err != nil {
		return err
	}
	fmt.Fprintf(b, "</%s>", p.Name)
	return nil
}
