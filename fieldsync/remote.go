// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldops/fieldsync/fieldstore"
)

// TokenSource returns the bearer token used to authenticate remote calls.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken wraps a fixed token string as a TokenSource.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// SyncOrderResult is the server's answer to a full-record push. When the
// server holds a divergent newer version it reports Conflict together with
// its authoritative copy.
type SyncOrderResult struct {
	Conflict      bool                     `json:"conflict"`
	ServerVersion *fieldstore.ServiceOrder `json:"server_version,omitempty"`
}

// Remote is the API surface the sync engine needs from the central server.
type Remote interface {
	UpdateOrder(ctx context.Context, update StatusUpdatePayload) error
	SyncOrder(ctx context.Context, order *fieldstore.ServiceOrder) (*SyncOrderResult, error)
	ExecuteDelivery(ctx context.Context, payload ExecutePayload) error
	UploadPhoto(ctx context.Context, photo *fieldstore.Photo) error
	ReportLocation(ctx context.Context, loc LocationPayload) error
	OrdersSince(ctx context.Context, since time.Time) ([]*fieldstore.ServiceOrder, error)
	RoutesSince(ctx context.Context, since time.Time) ([]*fieldstore.Route, error)
}

// HTTPRemote talks to the field-service API over HTTP with bearer-token
// authentication.
type HTTPRemote struct {
	BaseURL string
	Token   TokenSource
	HTTP    *http.Client
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote builds a remote client. Per-call timeouts belong to the
// HTTP client, not the orchestrator.
func NewHTTPRemote(baseURL string, token TokenSource) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// tokenExpired inspects a JWT locally and reports whether its exp claim has
// already passed. Signature verification is the server's job; this check
// only exists to classify a stale credential as an auth failure without
// spending a network round trip.
func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false // not a JWT; let the server decide
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

func (r *HTTPRemote) authorize(ctx context.Context, req *http.Request) error {
	token, err := r.Token(ctx)
	if err != nil {
		return &RemoteError{Class: ClassAuth, Msg: fmt.Sprintf("failed to get token: %v", err)}
	}
	if tokenExpired(token, time.Now()) {
		return &RemoteError{Class: ClassAuth, Msg: "bearer token expired"}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// doJSON issues a request with an optional JSON body and decodes the
// response into out (when non-nil). Non-2xx statuses come back classified.
func (r *HTTPRemote) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := r.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// UpdateOrder applies a status/field update; used both for direct online
// mutation and offline-action replay.
func (r *HTTPRemote) UpdateOrder(ctx context.Context, update StatusUpdatePayload) error {
	path := fmt.Sprintf("/service-orders/%s", url.PathEscape(update.OrderID))
	return r.doJSON(ctx, http.MethodPut, path, update, nil)
}

// SyncOrder pushes the full local record to the dedicated sync endpoint.
func (r *HTTPRemote) SyncOrder(ctx context.Context, order *fieldstore.ServiceOrder) (*SyncOrderResult, error) {
	path := fmt.Sprintf("/service-orders/%s/sync", url.PathEscape(order.ID))
	var result SyncOrderResult
	if err := r.doJSON(ctx, http.MethodPut, path, order, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteDelivery applies a composite delivery-execution action.
func (r *HTTPRemote) ExecuteDelivery(ctx context.Context, payload ExecutePayload) error {
	return r.doJSON(ctx, http.MethodPost, "/service-orders/execute", payload, nil)
}

// ReportLocation sends a driver location sample.
func (r *HTTPRemote) ReportLocation(ctx context.Context, loc LocationPayload) error {
	return r.doJSON(ctx, http.MethodPost, "/locations", loc, nil)
}

// UploadPhoto transmits the photo binary as a multipart form together with
// its owning order id, capture timestamp and content type.
func (r *HTTPRemote) UploadPhoto(ctx context.Context, photo *fieldstore.Photo) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("photo_id", photo.ID); err != nil {
		return fmt.Errorf("failed to write photo_id field: %w", err)
	}
	if err := writer.WriteField("order_id", photo.OrderID); err != nil {
		return fmt.Errorf("failed to write order_id field: %w", err)
	}
	if err := writer.WriteField("created_at", photo.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write created_at field: %w", err)
	}
	part, err := writer.CreateFormFile("photo", photo.ID+".jpg")
	if err != nil {
		return fmt.Errorf("failed to create photo form file: %w", err)
	}
	if _, err := part.Write(photo.Data); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/service-orders/photos", &buf)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := r.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, string(respBody))
	}
	return nil
}

func (r *HTTPRemote) pullSince(ctx context.Context, path string, since time.Time, out any) error {
	query := ""
	if !since.IsZero() {
		query = "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	return r.doJSON(ctx, http.MethodGet, path+query, nil, out)
}

// OrdersSince pulls orders modified after the given watermark.
func (r *HTTPRemote) OrdersSince(ctx context.Context, since time.Time) ([]*fieldstore.ServiceOrder, error) {
	var orders []*fieldstore.ServiceOrder
	if err := r.pullSince(ctx, "/service-orders", since, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// RoutesSince pulls routes modified after the given watermark.
func (r *HTTPRemote) RoutesSince(ctx context.Context, since time.Time) ([]*fieldstore.Route, error) {
	var routes []*fieldstore.Route
	if err := r.pullSince(ctx, "/routes", since, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}
