package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/platform/config"
)

// HTTPRunner invokes the external sandboxed judge over HTTP. The request and
// timeout live entirely on this boundary; the judge configuration is passed
// through opaque.
type HTTPRunner struct {
	url    string
	client *http.Client
}

func NewHTTPRunner() *HTTPRunner {
	return &HTTPRunner{
		url: config.AppConfig.RunnerURL,
		client: &http.Client{
			Timeout: time.Duration(config.AppConfig.RunnerTimeoutSeconds) * time.Second,
		},
	}
}

var _ Runner = (*HTTPRunner)(nil)

type runnerRequest struct {
	SubmissionID int64           `json:"submission_id"`
	Code         string          `json:"code"`
	JudgeName    string          `json:"judge_name"`
	JudgeConfig  json.RawMessage `json:"judge_config,omitempty"`
}

func (r *HTTPRunner) Run(ctx context.Context, job RunnerJob) (*model.Verdict, error) {
	body, err := json.Marshal(runnerRequest{
		SubmissionID: job.Submission.ID,
		Code:         string(job.Code),
		JudgeName:    job.Exercise.JudgeName,
		JudgeConfig:  job.Exercise.JudgeConfig,
	})
	if err != nil {
		return nil, common.Errorf("failed to marshal runner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, common.Errorf("failed to build runner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, common.Errorf("runner call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runner returned status %d", resp.StatusCode)
	}

	var verdict model.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, common.Errorf("malformed runner verdict: %w", err)
	}
	return &verdict, nil
}
