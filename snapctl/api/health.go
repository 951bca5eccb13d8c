package api

import (
	"context"
	"errors"
	"net/http"

	"healthsnap/api/server"
)

func (c *Client) GetStatus(ctx context.Context) (server.StatusResponse, error) {
	var out server.StatusResponse
	err := c.getJSON(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *Client) GetHealthMetrics(ctx context.Context) (server.NodeHealthResponse, error) {
	var out server.NodeHealthResponse
	err := c.getJSON(ctx, http.MethodGet, "/nodehealth", nil, &out)
	return out, err
}

func (c *Client) GetLiveness(ctx context.Context) (bool, error) {
	var out server.LivenessResponse
	err := c.getJSON(ctx, http.MethodGet, "/health/liveness", nil, &out)
	return out.Alive, err
}

// GetReadiness reports false without error when the node answers 503.
func (c *Client) GetReadiness(ctx context.Context) (bool, error) {
	var out server.ReadinessResponse
	err := c.getJSON(ctx, http.MethodGet, "/health/readiness", nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusServiceUnavailable {
		return false, nil
	}
	return out.Ready, err
}
