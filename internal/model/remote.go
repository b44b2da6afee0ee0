package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

const maxErrorBody = 512

// RemoteClient calls a model hosted behind a TensorFlow Serving style REST
// endpoint, e.g. http://localhost:8501/v1/models/digits.
type RemoteClient struct {
	modelURL string
	client   *http.Client
}

// NewRemoteClient validates modelURL and returns a client. A nil client uses
// http.DefaultClient.
func NewRemoteClient(modelURL string, client *http.Client) (*RemoteClient, error) {
	u, err := url.Parse(modelURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: unsupported scheme %q", u.Scheme)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &RemoteClient{modelURL: strings.TrimSuffix(u.String(), "/"), client: client}, nil
}

// instance is one image in the channels-last layout the model was trained on.
type instance [preprocess.Size][preprocess.Size][1]float32

type predictRequest struct {
	Instances []instance `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// Predict sends t as a single instance and returns its score vector.
func (c *RemoteClient) Predict(ctx context.Context, t preprocess.Tensor) ([]float64, error) {
	var in instance
	for y := 0; y < preprocess.Size; y++ {
		for x := 0; x < preprocess.Size; x++ {
			in[y][x][0] = t.At(x, y)
		}
	}

	body, err := json.Marshal(predictRequest{Instances: []instance{in}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL+":predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrRemote, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemote, response.StatusCode, bytes.TrimSpace(msg))
	}

	var resp predictResponse
	if err := json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRemote, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if len(resp.Predictions) != 1 {
		return nil, fmt.Errorf("%w: expected 1 prediction, got %d", ErrRemote, len(resp.Predictions))
	}
	return resp.Predictions[0], nil
}

// CheckHealth asks the serving endpoint for the model status.
func (c *RemoteClient) CheckHealth(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model endpoint unhealthy: %d", ErrRemote, response.StatusCode)
	}
	return nil
}
