package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/jobtable"
)

const orphanInterruptTimeout = 5 * time.Second

// apiError is a non-2xx response from the backend
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, body)
}

// SubmitJob sends workflow to the backend tagged with the client id and
// registers the returned job id. The handle resolves when the backend reports
// the job finished, or with ErrAborted when the client closes first.
//
// A rejected job fails with a *errors.SubmissionError. Nothing is registered
// unless the backend accepted the job, and nothing is sent after Close.
func (c *Client) SubmitJob(ctx context.Context, workflow any) (string, *jobtable.Handle, error) {
	if workflow == nil {
		return "", nil, errors.WrapInvalid(fmt.Errorf("nil workflow"), "Client", "SubmitJob", "validate workflow")
	}
	if c.closed.Load() {
		return "", nil, errors.WrapFatal(errors.ErrClosed, "Client", "SubmitJob", "check client")
	}

	var resp promptResponse
	err := c.doJSON(ctx, http.MethodPost, "/prompt", nil, promptRequest{Prompt: workflow, ClientID: c.id}, &resp)
	if err != nil {
		var apiErr *apiError
		if stderrors.As(err, &apiErr) {
			return "", nil, errors.WrapFatal(submissionError(apiErr.Status, apiErr.Body), "Client", "SubmitJob", "submit job")
		}
		return "", nil, errors.Connection(err, "Client", "SubmitJob", "submit job")
	}

	if len(resp.NodeErrors) > 0 {
		subErr := &errors.SubmissionError{Status: http.StatusOK, NodeErrors: nodeErrors(resp.NodeErrors)}
		return "", nil, errors.WrapFatal(subErr, "Client", "SubmitJob", "submit job")
	}
	if resp.PromptID == "" {
		subErr := &errors.SubmissionError{Status: http.StatusOK, Message: "response carried no prompt_id"}
		return "", nil, errors.WrapFatal(subErr, "Client", "SubmitJob", "submit job")
	}

	handle, err := c.table.Register(resp.PromptID)
	if err != nil {
		if stderrors.Is(err, errors.ErrClosed) {
			// closed while the request was in flight; nothing will track the job
			c.interruptOrphan(ctx, resp.PromptID)
		}
		return "", nil, err
	}

	c.metrics.RecordSubmitted()
	c.logger.Info("Job submitted", "job_id", resp.PromptID, "queue_number", resp.Number)
	return resp.PromptID, handle, nil
}

func (c *Client) interruptOrphan(ctx context.Context, jobID string) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = orphanInterruptTimeout
	}
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	_ = c.InterruptJob(ictx, jobID)
}

// InterruptJob asks the backend to abort jobID, or the running job when
// jobID is empty. It does not resolve the job; the backend's terminal event
// or Close does. Failures are logged and returned for callers that care.
func (c *Client) InterruptJob(ctx context.Context, jobID string) error {
	body := map[string]string{}
	if jobID != "" {
		body["prompt_id"] = jobID
	}

	if err := c.doJSON(ctx, http.MethodPost, "/interrupt", nil, body, nil); err != nil {
		c.metrics.RecordInterrupt(false)
		c.logger.Warn("Interrupt not delivered", "job_id", jobID, "error", err)
		return errors.WrapTransient(err, "Client", "InterruptJob", "send interrupt")
	}

	c.metrics.RecordInterrupt(true)
	c.logger.Info("Interrupt sent", "job_id", jobID)
	return nil
}

// FetchOutputs returns the output slots the backend recorded for jobID.
// It fails with ErrNotFound when the backend has no history for the job.
func (c *Client) FetchOutputs(ctx context.Context, jobID string) (Outputs, error) {
	if jobID == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("empty job id"), "Client", "FetchOutputs", "validate job id")
	}
	if c.history != nil {
		if cached, ok := c.history.Get(jobID); ok {
			return cached.(Outputs).Clone(), nil
		}
	}

	var resp map[string]historyEntry
	if err := c.doJSON(ctx, http.MethodGet, "/history/"+url.PathEscape(jobID), nil, nil, &resp); err != nil {
		var apiErr *apiError
		if stderrors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: job %s", errors.ErrNotFound, jobID), "Client", "FetchOutputs", "query history")
		}
		return nil, errors.Connection(err, "Client", "FetchOutputs", "query history")
	}

	entry, ok := resp[jobID]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: job %s", errors.ErrNotFound, jobID), "Client", "FetchOutputs", "query history")
	}

	outputs := entry.outputs()
	if c.history != nil && entry.finished() {
		c.history.SetDefault(jobID, outputs.Clone())
	}
	return outputs, nil
}

// Download streams one artifact. The caller closes the returned reader.
func (c *Client) Download(ctx context.Context, artifact ArtifactDescriptor) (io.ReadCloser, error) {
	if artifact.Filename == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("artifact without filename"), "Client", "Download", "validate artifact")
	}

	query := url.Values{}
	query.Set("filename", artifact.Filename)
	query.Set("subfolder", artifact.Subfolder)
	query.Set("type", artifact.Type)

	endpoint, err := c.buildURL("/view", query)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Download", "build url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Download", "build request")
	}

	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, errors.Connection(err, "Client", "Download", "fetch "+artifact.Filename)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.WrapInvalid(fmt.Errorf("%w: artifact %s", errors.ErrNotFound, artifact.Filename),
			"Client", "Download", "fetch artifact")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errors.WrapTransient(&apiError{Status: resp.StatusCode, Body: data}, "Client", "Download", "fetch artifact")
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Body: respData}
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return json.Unmarshal(respData, respBody)
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	endpoint := base.ResolveReference(ref)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}

// submissionError decodes the backend's rejection body
func submissionError(status int, body []byte) *errors.SubmissionError {
	subErr := &errors.SubmissionError{Status: status}

	var payload backendError
	if err := json.Unmarshal(body, &payload); err != nil {
		subErr.Message = strings.TrimSpace(string(body))
		return subErr
	}

	var detail backendErrorDetail
	if err := json.Unmarshal(payload.Error, &detail); err == nil {
		subErr.Type = detail.Type
		subErr.Message = detail.Message
	} else {
		var msg string
		if err := json.Unmarshal(payload.Error, &msg); err == nil {
			subErr.Message = msg
		}
	}
	if len(payload.NodeErrors) > 0 {
		subErr.NodeErrors = nodeErrors(payload.NodeErrors)
	}
	return subErr
}

func nodeErrors(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for node, data := range raw {
		var ne nodeError
		if err := json.Unmarshal(data, &ne); err == nil && len(ne.Errors) > 0 {
			msgs := make([]string, 0, len(ne.Errors))
			for _, e := range ne.Errors {
				msgs = append(msgs, e.Message)
			}
			out[node] = strings.Join(msgs, "; ")
			continue
		}
		out[node] = string(data)
	}
	return out
}
