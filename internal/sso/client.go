// Package sso integrates with the county office single sign-on gateway.
// The gateway hands browsers an opaque artifact; exchanging it through the
// gateway's SOAP endpoint yields the user's directory profile.
package sso

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Profile is the directory record returned for a validated SSO artifact.
type Profile struct {
	Account  string
	FullName string
	UnitCode string
}

// IdentityProvider exchanges an SSO artifact for a user profile.
type IdentityProvider interface {
	GetUserProfile(ctx context.Context, artifact string) (*Profile, error)
}

const soapAction = "http://tempuri.org/getUserProfile"

// Client calls the gateway's CommonWebService SOAP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a gateway client. A zero timeout defaults to ten
// seconds.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	GetUserProfile *getUserProfileRequest  `xml:"getUserProfile,omitempty"`
	Response       *getUserProfileResponse `xml:"getUserProfileResponse,omitempty"`
}

type getUserProfileRequest struct {
	XMLName xml.Name `xml:"http://tempuri.org/ getUserProfile"`
	Token   string   `xml:"token"`
}

type getUserProfileResponse struct {
	Result string `xml:"getUserProfileResult"`
}

// profileDocument is the inner XML payload carried inside the SOAP result
// string. The gateway emits element names in Chinese; an <Error> root means
// the artifact was rejected.
type profileDocument struct {
	XMLName  xml.Name
	Account  string `xml:"帳號"`
	FullName string `xml:"姓名"`
	UnitCode string `xml:"單位代碼"`
}

// GetUserProfile exchanges an artifact for the user's directory profile.
func (c *Client) GetUserProfile(ctx context.Context, artifact string) (*Profile, error) {
	envelope := soapEnvelope{Body: soapBody{GetUserProfile: &getUserProfileRequest{Token: artifact}}}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode sso request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, fmt.Errorf("build sso request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call sso gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read sso response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sso gateway returned status %d", resp.StatusCode)
	}

	var reply soapEnvelope
	if err := xml.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode sso response: %w", err)
	}
	if reply.Body.Response == nil || reply.Body.Response.Result == "" {
		return nil, fmt.Errorf("sso gateway returned empty profile")
	}

	return parseProfile(reply.Body.Response.Result)
}

func parseProfile(raw string) (*Profile, error) {
	var doc profileDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode sso profile: %w", err)
	}
	if doc.XMLName.Local == "Error" {
		return nil, fmt.Errorf("sso gateway rejected artifact")
	}
	if doc.Account == "" {
		return nil, fmt.Errorf("sso profile missing account")
	}
	return &Profile{Account: doc.Account, FullName: doc.FullName, UnitCode: doc.UnitCode}, nil
}
