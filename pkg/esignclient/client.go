/**
 * @description
 * This package provides a client for the DocuSign eSignature REST API. It
 * encapsulates the service-account JWT grant, account resolution, and the four
 * envelope operations this service needs: create-from-template, recipient view,
 * custom-field lookup, and combined-document download.
 *
 * A Client holds only configuration and is safe to share. All per-invocation
 * state (bearer token, account id, API base path) lives in a Session returned
 * by OpenSession, so every request chain authenticates from scratch and no
 * token is cached across invocations.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: signs the RS256 grant assertion.
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package esignclient

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// tokenLifetime is the fixed expiry requested on every grant assertion.
	tokenLifetime = 3600 * time.Second

	// grantScope is the only scope this service needs.
	grantScope = "signature"

	// jwtBearerGrantType is the OAuth grant type for the JWT user token flow.
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// embeddedRecipientID matches the single template role bound at envelope
	// creation. The provider requires it to agree with the clientUserId when
	// requesting a recipient view.
	embeddedRecipientID = "1"
)

// Config carries the service-account credentials and the fixed envelope
// parameters. All values come from the environment.
type Config struct {
	// AuthBaseURL is the OAuth host, e.g. https://account-d.docusign.com.
	AuthBaseURL string
	// DefaultAPIBaseURL is the REST base used when userinfo returns no usable
	// base_uri for the account, e.g. https://demo.docusign.net/restapi.
	DefaultAPIBaseURL string

	ClientID   string
	UserID     string
	PrivateKey *rsa.PrivateKey

	TemplateID   string
	RoleName     string
	ClientUserID string
	ReturnURL    string
}

// Client is a client for the DocuSign eSignature REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new DocuSign API client from the given configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ParsePrivateKey decodes a PEM-encoded RSA private key. Keys delivered
// through environment variables often arrive with literal "\n" escapes; those
// are unescaped before decoding.
func ParsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	normalized := strings.ReplaceAll(pemData, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service-account private key: %w", err)
	}
	return key, nil
}

// ErrorResponse represents an error payload from the DocuSign API.
type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.ErrorCode == "" && e.Message == "" {
		return "unknown docusign api error"
	}
	return fmt.Sprintf("docusign api error: %s - %s", e.ErrorCode, e.Message)
}

// Session is the short-lived authenticated state for one request chain. It is
// created per invocation and never shared or cached.
type Session struct {
	client      *Client
	accessToken string
	accountID   string
	apiBaseURL  string
}

// AccountID returns the resolved provider account id for this session.
func (s *Session) AccountID() string {
	return s.accountID
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type userInfoResponse struct {
	Sub      string `json:"sub"`
	Accounts []struct {
		AccountID string `json:"account_id"`
		IsDefault bool   `json:"is_default"`
		BaseURI   string `json:"base_uri"`
	} `json:"accounts"`
}

// OpenSession performs the JWT grant and resolves the account for the
// authenticated identity. Per the provider's model the first account in the
// userinfo response is used; no multi-account disambiguation is attempted.
func (c *Client) OpenSession(ctx context.Context) (*Session, error) {
	token, err := c.requestUserToken(ctx)
	if err != nil {
		return nil, err
	}

	info, err := c.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(info.Accounts) == 0 {
		return nil, fmt.Errorf("userinfo returned no accounts for user %s", c.cfg.UserID)
	}

	account := info.Accounts[0]
	apiBase := c.cfg.DefaultAPIBaseURL
	if account.BaseURI != "" {
		apiBase = strings.TrimSuffix(account.BaseURI, "/") + "/restapi"
	}

	return &Session{
		client:      c,
		accessToken: token,
		accountID:   account.AccountID,
		apiBaseURL:  apiBase,
	}, nil
}

// requestUserToken executes the JWT bearer grant and returns the short-lived
// access token.
func (c *Client) requestUserToken(ctx context.Context) (string, error) {
	assertion, err := c.buildGrantAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=esign_client op=token status=%d msg=\"jwt grant rejected\"", resp.StatusCode)
		return "", fmt.Errorf("jwt grant rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var token tokenResponse
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}
	return token.AccessToken, nil
}

// buildGrantAssertion signs the RS256 assertion for the JWT user-token grant.
// The audience is the OAuth host without scheme, per the provider's contract.
func (c *Client) buildGrantAssertion() (string, error) {
	authURL, err := url.Parse(c.cfg.AuthBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid auth base url %q: %w", c.cfg.AuthBaseURL, err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.cfg.ClientID,
		"sub":   c.cfg.UserID,
		"aud":   authURL.Host,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
		"scope": grantScope,
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign grant assertion: %w", err)
	}
	return assertion, nil
}

func (c *Client) fetchUserInfo(ctx context.Context, accessToken string) (*userInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthBaseURL+"/oauth/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute userinfo request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=esign_client op=userinfo status=%d msg=\"account lookup failed\"", resp.StatusCode)
		return nil, fmt.Errorf("userinfo lookup failed (status %d)", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.Unmarshal(bodyBytes, &info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return &info, nil
}

// envelopeRequest is the create-envelope-from-template payload. The userEmail
// text custom field carries the signer's address through the provider so the
// completion webhook can recover it without any local storage.
type envelopeRequest struct {
	TemplateID    string         `json:"templateId"`
	Status        string         `json:"status"`
	TemplateRoles []templateRole `json:"templateRoles"`
	CustomFields  *customFields  `json:"customFields,omitempty"`
}

type templateRole struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RoleName     string `json:"roleName"`
	ClientUserID string `json:"clientUserId"`
}

type customFields struct {
	TextCustomFields []textCustomField `json:"textCustomFields,omitempty"`
}

type textCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Show  string `json:"show,omitempty"`
}

type envelopeResponse struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

// UserEmailCustomField is the custom-field name that joins "who signed" to
// "who receives the final document".
const UserEmailCustomField = "userEmail"

// CreateEnvelopeFromTemplate creates and immediately sends an envelope from
// the configured template, binding the single template role to the signer and
// attaching the userEmail custom field. Returns the new envelope id.
//
// There is no idempotency key: calling this twice for the same signer creates
// two envelopes in the provider's system.
func (s *Session) CreateEnvelopeFromTemplate(ctx context.Context, signerName, signerEmail string) (string, error) {
	payload := envelopeRequest{
		TemplateID: s.client.cfg.TemplateID,
		Status:     "sent",
		TemplateRoles: []templateRole{
			{
				Email:        signerEmail,
				Name:         signerName,
				RoleName:     s.client.cfg.RoleName,
				ClientUserID: s.client.cfg.ClientUserID,
			},
		},
		CustomFields: &customFields{
			TextCustomFields: []textCustomField{
				{Name: UserEmailCustomField, Value: signerEmail, Show: "false"},
			},
		},
	}

	var created envelopeResponse
	if err := s.doJSON(ctx, http.MethodPost, "/envelopes", payload, &created); err != nil {
		return "", err
	}
	if created.EnvelopeID == "" {
		return "", fmt.Errorf("envelope creation returned no envelope id")
	}
	return created.EnvelopeID, nil
}

type recipientViewRequest struct {
	ReturnURL            string `json:"returnUrl"`
	AuthenticationMethod string `json:"authenticationMethod"`
	Email                string `json:"email"`
	UserName             string `json:"userName"`
	ClientUserID         string `json:"clientUserId"`
	RecipientID          string `json:"recipientId"`
}

type recipientViewResponse struct {
	URL string `json:"url"`
}

// CreateRecipientView requests the embedded signing URL for the envelope's
// single recipient. Authentication method is "none": the embedding page is
// trusted to have already authenticated the signer.
func (s *Session) CreateRecipientView(ctx context.Context, envelopeID, signerName, signerEmail string) (string, error) {
	payload := recipientViewRequest{
		ReturnURL:            s.client.cfg.ReturnURL,
		AuthenticationMethod: "none",
		Email:                signerEmail,
		UserName:             signerName,
		ClientUserID:         s.client.cfg.ClientUserID,
		RecipientID:          embeddedRecipientID,
	}

	var view recipientViewResponse
	if err := s.doJSON(ctx, http.MethodPost, "/envelopes/"+envelopeID+"/views/recipient", payload, &view); err != nil {
		return "", err
	}
	if view.URL == "" {
		return "", fmt.Errorf("recipient view returned no url")
	}
	return view.URL, nil
}

type envelopeDetail struct {
	Status       string `json:"status"`
	CustomFields struct {
		TextCustomFields []textCustomField `json:"textCustomFields"`
	} `json:"customFields"`
}

// EnvelopeCustomField fetches the envelope with custom fields included and
// returns the value of the named text custom field. The second return value
// reports whether the field was present at all.
func (s *Session) EnvelopeCustomField(ctx context.Context, envelopeID, fieldName string) (string, bool, error) {
	var detail envelopeDetail
	if err := s.doJSON(ctx, http.MethodGet, "/envelopes/"+envelopeID+"?include=custom_fields", nil, &detail); err != nil {
		return "", false, err
	}

	for _, field := range detail.CustomFields.TextCustomFields {
		if field.Name == fieldName && strings.TrimSpace(field.Value) != "" {
			return field.Value, true, nil
		}
	}
	return "", false, nil
}

// CombinedDocument downloads the flattened, combined PDF for the envelope.
// The bytes are held in memory only; nothing is written to disk.
func (s *Session) CombinedDocument(ctx context.Context, envelopeID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBaseURL+"/v2.1/accounts/"+s.accountID+"/envelopes/"+envelopeID+"/documents/combined", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create document request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute document request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.decodeError("get_document", resp.StatusCode, bodyBytes)
	}
	if len(bodyBytes) == 0 {
		return nil, fmt.Errorf("combined document response was empty")
	}
	return bodyBytes, nil
}

// doJSON executes a JSON request against the envelopes API for this session's
// account and decodes the response into out.
func (s *Session) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	fullURL := s.apiBaseURL + "/v2.1/accounts/" + s.accountID + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s request: %w", method, path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.decodeError(method+" "+path, resp.StatusCode, bodyBytes)
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func (s *Session) decodeError(op string, status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || (errResp.ErrorCode == "" && errResp.Message == "") {
		log.Printf("level=warn component=esign_client op=%q status=%d msg=\"non-2xx response (unparsable error body)\"", op, status)
		return fmt.Errorf("docusign request failed (status %d)", status)
	}
	log.Printf("level=warn component=esign_client op=%q status=%d code=%q detail=%q", op, status, errResp.ErrorCode, errResp.Message)
	return &errResp
}
