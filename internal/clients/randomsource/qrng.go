package randomsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// QRNG reads uint8 samples from the ANU quantum random number service
// (or anything answering with the same JSON shape).
type QRNG struct {
	url    string
	client *http.Client
}

type qrngResponse struct {
	Type    string `json:"type"`
	Length  int    `json:"length"`
	Data    []int  `json:"data"`
	Success bool   `json:"success"`
}

func NewQRNG(url string, client *http.Client) *QRNG {
	if client == nil {
		client = http.DefaultClient
	}

	return &QRNG{url: url, client: client}
}

func (q *QRNG) Sample(ctx context.Context) (byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload qrngResponse

	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
	if err != nil {
		return 0, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}

	if !payload.Success || len(payload.Data) == 0 {
		return 0, fmt.Errorf("%w: request not successful", ErrUnavailable)
	}

	v := payload.Data[0]
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("%w: sample %d out of byte range", ErrUnavailable, v)
	}

	return byte(v), nil
}
