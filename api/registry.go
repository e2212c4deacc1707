package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/y3-myint-oo/wercker/util"
)

// StepRegistry is the step resolver's view of the registry: look up a
// step version, then fetch its tarball.
type StepRegistry interface {
	GetStepVersion(owner, name, version string) (*APIStepVersion, error)
	GetTarball(tarballURL string) (*http.Response, error)
}

// WerckerStepRegistry talks to a wercker step registry over plain HTTP.
type WerckerStepRegistry struct {
	baseURL   string
	authToken string
	logger    *util.LogEntry
}

// NewWerckerStepRegistry creates a registry client for baseURL.
func NewWerckerStepRegistry(baseURL, authToken string) StepRegistry {
	logger := util.RootLogger().WithFields(util.LogFields{
		"Logger": "Registry",
	})
	return &WerckerStepRegistry{
		baseURL:   baseURL,
		authToken: authToken,
		logger:    logger,
	}
}

// GetStepVersion looks a step version up in the registry.
func (r *WerckerStepRegistry) GetStepVersion(owner, name, version string) (*APIStepVersion, error) {
	url := fmt.Sprintf("%s/api/steps/%s/%s/%s", r.baseURL, owner, name, version)

	resp, err := r.getWithRetry(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Step struct {
			Summary    string `json:"summary"`
			TarballURL string `json:"tarballUrl"`
			Version    struct {
				Number string `json:"number"`
			} `json:"version"`
		} `json:"step"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &APIStepVersion{
		Description: payload.Step.Summary,
		TarballURL:  payload.Step.TarballURL,
		Version:     payload.Step.Version.Number,
	}, nil
}

// GetTarball fetches a step tarball.
func (r *WerckerStepRegistry) GetTarball(tarballURL string) (*http.Response, error) {
	return r.getWithRetry(tarballURL)
}

// getWithRetry retries transport-level failures a couple of times;
// util.Get already handles 5xx retries internally.
func (r *WerckerStepRegistry) getWithRetry(url string) (*http.Response, error) {
	const maxTries = 3
	var resp *http.Response
	var err error
	for try := 0; try < maxTries; try++ {
		if try != 0 {
			r.logger.Infof("Retrying step url %s %d", url, try)
			time.Sleep(time.Second)
		}
		resp, err = util.Get(url, r.authToken)
		if err == nil {
			return resp, nil
		}
	}
	return resp, err
}
