package esplora

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bitmasklabs/rgbd/pkg/circuitbreaker"
	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

type esplora struct {
	apiURL  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewService returns a new esplora client as an explorer.Service interface.
// The endpoint is health-checked before being returned.
func NewService(apiURL string, requestTimeout time.Duration) (explorer.Service, error) {
	service := &esplora{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		breaker: circuitbreaker.NewCircuitBreaker("esplora"),
	}

	if err := service.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return service, nil
}

func (e *esplora) healthCheck() error {
	_, err := e.GetBlockHeight()
	return err
}

func (e *esplora) GetBlockHeight() (uint32, error) {
	url := fmt.Sprintf("%s/blocks/tip/height", e.apiURL)
	status, resp, err := e.get(url)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("esplora: %s", resp)
	}
	height, err := strconv.ParseUint(strings.TrimSpace(resp), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("esplora: malformed tip height %q", resp)
	}
	return uint32(height), nil
}

func (e *esplora) get(url string) (int, string, error) {
	res, err := e.breaker.Execute(func() (interface{}, error) {
		status, resp, err := newHTTPRequest(e.client, "GET", url, "")
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("esplora: %s", resp)
		}
		return httpResponse{status, resp}, nil
	})
	if err != nil {
		return 0, "", err
	}
	response := res.(httpResponse)
	return response.status, response.body, nil
}

func (e *esplora) post(url, body string) (int, string, error) {
	res, err := e.breaker.Execute(func() (interface{}, error) {
		status, resp, err := newHTTPRequest(e.client, "POST", url, body)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("esplora: %s", resp)
		}
		return httpResponse{status, resp}, nil
	})
	if err != nil {
		return 0, "", err
	}
	response := res.(httpResponse)
	return response.status, response.body, nil
}

type httpResponse struct {
	status int
	body   string
}
