package consortium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
)

const (
	userTenantsPath     = "/user-tenants?limit=1"
	consortiumTenants   = "/consortia/%s/tenants"
	sharingInstances    = "/consortia/%s/sharing/instances"
	sharedInstancesPath = sharingInstances + "?status=COMPLETE&instanceIdentifier=%s&limit=1000"
	headerToken         = "x-okapi-token"
	defaultHTTPTimeout  = 30 * time.Second
	sharingStatusError  = "ERROR"
)

var (
	// ErrNoBaseURL is returned when neither the Client nor the request names the consortia service.
	ErrNoBaseURL = errors.New("okapi url is not specified")

	// ErrUnexpectedStatus is returned when the consortia service answers with an unexpected status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrSharingFailed is returned when the central tenant refused to share an Instance.
	ErrSharingFailed = errors.New("sharing instance failed")

	// ErrRequestFailed is returned when a request to the consortia service could not be sent.
	ErrRequestFailed = errors.New("consortia request failed")
)

// SharingInstance is a request to copy an Instance from one tenant of a consortium to another.
type SharingInstance struct {
	ID                 string `json:"id,omitempty"`
	InstanceIdentifier string `json:"instanceIdentifier"`
	SourceTenantID     string `json:"sourceTenantId"`
	TargetTenantID     string `json:"targetTenantId"`
	Status             string `json:"status,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Client calls the consortia service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ClientOption defines a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets the URL of the consortia service. Without it the okapi URL of the request is used.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewClient creates a Client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{httpClient: &http.Client{Timeout: defaultHTTPTimeout}}

	for _, option := range options {
		option(c)
	}

	return c
}

type userTenantsResponse struct {
	UserTenants []struct {
		CentralTenantID string `json:"centralTenantId"`
		ConsortiumID    string `json:"consortiumId"`
	} `json:"userTenants"`
}

type tenantsResponse struct {
	Tenants []struct {
		ID        string `json:"id"`
		IsCentral bool   `json:"isCentral"`
	} `json:"tenants"`
}

type sharingInstancesResponse struct {
	SharingInstances []SharingInstance `json:"sharingInstances"`
}

// LoadData reads the consortium the tenant of rc belongs to. It reports false for tenants outside any consortium.
// A failing member lookup leaves MemberTenants empty instead of failing.
func (c *Client) LoadData(ctx context.Context, rc inventory.RequestContext) (Data, bool, error) {
	var userTenants userTenantsResponse
	if err := c.do(ctx, rc, http.MethodGet, userTenantsPath, nil, http.StatusOK, &userTenants); err != nil {
		return Data{}, false, err
	}

	if len(userTenants.UserTenants) == 0 {
		return Data{}, false, nil
	}

	data := Data{
		CentralTenantID: userTenants.UserTenants[0].CentralTenantID,
		ConsortiumID:    userTenants.UserTenants[0].ConsortiumID,
	}

	var tenants tenantsResponse
	if err := c.do(ctx, rc, http.MethodGet, fmt.Sprintf(consortiumTenants, url.PathEscape(data.ConsortiumID)),
		nil, http.StatusOK, &tenants); err == nil {
		for _, tenant := range tenants.Tenants {
			if !tenant.IsCentral {
				data.MemberTenants = append(data.MemberTenants, tenant.ID)
			}
		}
	}

	return data, true, nil
}

// ShadowTenants returns the tenants holding a completed share of an Instance of the central tenant.
func (c *Client) ShadowTenants(ctx context.Context, rc inventory.RequestContext, data Data, instanceID string) ([]string, error) {
	path := fmt.Sprintf(sharedInstancesPath, url.PathEscape(data.ConsortiumID), url.QueryEscape(instanceID))

	var shared sharingInstancesResponse
	if err := c.do(ctx, rc, http.MethodGet, path, nil, http.StatusOK, &shared); err != nil {
		return nil, err
	}

	tenants := make([]string, 0, len(shared.SharingInstances))
	for _, sharing := range shared.SharingInstances {
		for _, tenant := range []string{sharing.TargetTenantID, sharing.SourceTenantID} {
			if tenant != "" && tenant != data.CentralTenantID {
				tenants = append(tenants, tenant)
			}
		}
	}

	return tenants, nil
}

// Share asks the consortia service to copy an Instance. A share in progress counts as success.
func (c *Client) Share(ctx context.Context, rc inventory.RequestContext, consortiumID string, sharing SharingInstance) (SharingInstance, error) {
	body, err := inventory.EncodeDocument(sharing)
	if err != nil {
		return SharingInstance{}, err
	}

	var result SharingInstance
	err = c.do(ctx, rc, http.MethodPost, fmt.Sprintf(sharingInstances, url.PathEscape(consortiumID)), body, http.StatusCreated, &result)

	if err == nil && result.Status == sharingStatusError {
		err = errors.New(result.Error)
	}

	if err != nil {
		return SharingInstance{}, errors.Join(ErrSharingFailed, fmt.Errorf(
			"sourceTenantId: %s, targetTenantId: %s, instanceIdentifier: %s: %w",
			sharing.SourceTenantID, sharing.TargetTenantID, sharing.InstanceIdentifier, err))
	}

	return result, nil
}

func (c *Client) do(
	ctx context.Context,
	rc inventory.RequestContext,
	method, path string,
	body []byte,
	expectedStatus int,
	result any,
) error {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = strings.TrimSuffix(rc.OkapiURL, "/")
	}

	if baseURL == "" {
		return ErrNoBaseURL
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}

	setHeaders(req, rc)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}

	if resp.StatusCode != expectedStatus {
		return fmt.Errorf("%w: method=%s uri=%s status=%d body=%s",
			ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return inventory.DecodeDocument(payload, result)
}

func setHeaders(req *http.Request, rc inventory.RequestContext) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(domainevent.HeaderTenant, rc.Tenant)

	if rc.OkapiURL != "" {
		req.Header.Set(domainevent.HeaderOkapiURL, rc.OkapiURL)
	}

	if rc.Token != "" {
		req.Header.Set(headerToken, rc.Token)
	}

	if rc.TraceID != "" {
		req.Header.Set(domainevent.HeaderTraceID, rc.TraceID)
	}
}
