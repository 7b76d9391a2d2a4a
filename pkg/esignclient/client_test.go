package esignclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// fakeProvider is an in-memory stand-in for the DocuSign OAuth and envelopes
// endpoints. It records the bodies it receives so tests can assert on them.
type fakeProvider struct {
	t   *testing.T
	key *rsa.PrivateKey

	server *httptest.Server

	lastAssertionClaims jwt.MapClaims
	lastEnvelopeBody    map[string]interface{}
	lastViewBody        map[string]interface{}

	envelopeCalls int
	documentBytes []byte
	customFields  []map[string]string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	fp := &fakeProvider{
		t:             t,
		key:           key,
		documentBytes: []byte("%PDF-1.4 signed document bytes"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", fp.handleToken)
	mux.HandleFunc("/oauth/userinfo", fp.handleUserInfo)
	mux.HandleFunc("/restapi/v2.1/accounts/acct-1/envelopes", fp.handleCreateEnvelope)
	mux.HandleFunc("/restapi/v2.1/accounts/acct-1/envelopes/env-1/views/recipient", fp.handleRecipientView)
	mux.HandleFunc("/restapi/v2.1/accounts/acct-1/envelopes/env-1", fp.handleGetEnvelope)
	mux.HandleFunc("/restapi/v2.1/accounts/acct-1/envelopes/env-1/documents/combined", fp.handleGetDocument)

	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) client() *Client {
	return NewClient(Config{
		AuthBaseURL:       fp.server.URL,
		DefaultAPIBaseURL: fp.server.URL + "/restapi",
		ClientID:          "client-abc",
		UserID:            "user-xyz",
		PrivateKey:        fp.key,
		TemplateID:        "template-1",
		RoleName:          "Member",
		ClientUserID:      "1000",
		ReturnURL:         "https://example.com/signed",
	})
}

func (fp *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if got := r.PostFormValue("grant_type"); got != jwtBearerGrantType {
		http.Error(w, fmt.Sprintf("unexpected grant_type %q", got), http.StatusBadRequest)
		return
	}

	assertion := r.PostFormValue("assertion")
	token, err := jwt.Parse(assertion, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &fp.key.PublicKey, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, fmt.Sprintf("bad assertion: %v", err), http.StatusUnauthorized)
		return
	}
	fp.lastAssertionClaims = token.Claims.(jwt.MapClaims)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
}

func (fp *fakeProvider) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"sub":"user-xyz","accounts":[{"account_id":"acct-1","is_default":true,"base_uri":%q},{"account_id":"acct-2","is_default":false,"base_uri":%q}]}`,
		fp.server.URL, fp.server.URL)
}

func (fp *fakeProvider) requireBearer(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer test-token" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return false
	}
	return true
}

func (fp *fakeProvider) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	fp.lastEnvelopeBody = payload
	fp.envelopeCalls++

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"envelopeId":"env-1","status":"sent"}`)
}

func (fp *fakeProvider) handleRecipientView(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	fp.lastViewBody = payload

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"url":"https://demo.docusign.net/signing/startinsession.aspx?t=abc123"}`)
}

func (fp *fakeProvider) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}
	if got := r.URL.Query().Get("include"); got != "custom_fields" {
		http.Error(w, "expected include=custom_fields", http.StatusBadRequest)
		return
	}

	type field struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	var fields []field
	for _, f := range fp.customFields {
		fields = append(fields, field{Name: f["name"], Value: f["value"]})
	}
	resp := map[string]interface{}{
		"status": "completed",
		"customFields": map[string]interface{}{
			"textCustomFields": fields,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (fp *fakeProvider) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(fp.documentBytes)
}

func TestOpenSession_SignsGrantAndResolvesFirstAccount(t *testing.T) {
	fp := newFakeProvider(t)

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	if session.AccountID() != "acct-1" {
		t.Fatalf("expected first account id %q, got %q", "acct-1", session.AccountID())
	}

	claims := fp.lastAssertionClaims
	if got := claims["iss"]; got != "client-abc" {
		t.Fatalf("expected iss %q, got %v", "client-abc", got)
	}
	if got := claims["sub"]; got != "user-xyz" {
		t.Fatalf("expected sub %q, got %v", "user-xyz", got)
	}
	if got := claims["scope"]; got != "signature" {
		t.Fatalf("expected scope %q, got %v", "signature", got)
	}

	serverURL, _ := url.Parse(fp.server.URL)
	if got := claims["aud"]; got != serverURL.Host {
		t.Fatalf("expected aud %q (host only, no scheme), got %v", serverURL.Host, got)
	}

	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	if exp-iat != 3600 {
		t.Fatalf("expected fixed 3600s expiry, got %v", exp-iat)
	}
}

func TestCreateEnvelopeFromTemplate_SetsRoleAndUserEmailCustomField(t *testing.T) {
	fp := newFakeProvider(t)

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	envelopeID, err := session.CreateEnvelopeFromTemplate(context.Background(), "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatalf("CreateEnvelopeFromTemplate returned error: %v", err)
	}
	if envelopeID != "env-1" {
		t.Fatalf("expected envelope id %q, got %q", "env-1", envelopeID)
	}

	body := fp.lastEnvelopeBody
	if got := body["templateId"]; got != "template-1" {
		t.Fatalf("expected templateId %q, got %v", "template-1", got)
	}
	if got := body["status"]; got != "sent" {
		t.Fatalf("expected status %q, got %v", "sent", got)
	}

	roles, ok := body["templateRoles"].([]interface{})
	if !ok || len(roles) != 1 {
		t.Fatalf("expected exactly one template role, got %v", body["templateRoles"])
	}
	role := roles[0].(map[string]interface{})
	if role["email"] != "jane@example.com" || role["name"] != "Jane Doe" {
		t.Fatalf("template role not bound to signer: %v", role)
	}
	if role["roleName"] != "Member" {
		t.Fatalf("expected roleName %q, got %v", "Member", role["roleName"])
	}
	if role["clientUserId"] != "1000" {
		t.Fatalf("expected clientUserId %q, got %v", "1000", role["clientUserId"])
	}

	// The initiator must populate the join key the webhook processor reads.
	cf, ok := body["customFields"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected customFields on envelope creation, got none")
	}
	textFields := cf["textCustomFields"].([]interface{})
	if len(textFields) != 1 {
		t.Fatalf("expected one text custom field, got %d", len(textFields))
	}
	field := textFields[0].(map[string]interface{})
	if field["name"] != UserEmailCustomField || field["value"] != "jane@example.com" {
		t.Fatalf("expected %s=jane@example.com custom field, got %v", UserEmailCustomField, field)
	}
}

func TestCreateRecipientView_ReturnsSigningURL(t *testing.T) {
	fp := newFakeProvider(t)

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	signingURL, err := session.CreateRecipientView(context.Background(), "env-1", "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatalf("CreateRecipientView returned error: %v", err)
	}
	if !strings.HasPrefix(signingURL, "https://") || !strings.Contains(signingURL, "?") {
		t.Fatalf("expected a URL-shaped signing url, got %q", signingURL)
	}

	body := fp.lastViewBody
	if body["authenticationMethod"] != "none" {
		t.Fatalf("expected authenticationMethod %q, got %v", "none", body["authenticationMethod"])
	}
	if body["recipientId"] != "1" {
		t.Fatalf("expected recipientId %q, got %v", "1", body["recipientId"])
	}
	if body["clientUserId"] != "1000" {
		t.Fatalf("expected clientUserId %q, got %v", "1000", body["clientUserId"])
	}
	if body["returnUrl"] != "https://example.com/signed" {
		t.Fatalf("expected fixed returnUrl, got %v", body["returnUrl"])
	}
}

func TestEnvelopeCustomField(t *testing.T) {
	fp := newFakeProvider(t)
	fp.customFields = []map[string]string{
		{"name": "campaign", "value": "spring"},
		{"name": "userEmail", "value": "jane@example.com"},
	}

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	value, found, err := session.EnvelopeCustomField(context.Background(), "env-1", UserEmailCustomField)
	if err != nil {
		t.Fatalf("EnvelopeCustomField returned error: %v", err)
	}
	if !found || value != "jane@example.com" {
		t.Fatalf("expected userEmail jane@example.com, got %q (found=%v)", value, found)
	}

	fp.customFields = nil
	_, found, err = session.EnvelopeCustomField(context.Background(), "env-1", UserEmailCustomField)
	if err != nil {
		t.Fatalf("EnvelopeCustomField returned error: %v", err)
	}
	if found {
		t.Fatalf("expected userEmail to be absent")
	}
}

func TestCombinedDocument(t *testing.T) {
	fp := newFakeProvider(t)

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	pdf, err := session.CombinedDocument(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("CombinedDocument returned error: %v", err)
	}
	if !bytes.Equal(pdf, fp.documentBytes) {
		t.Fatalf("combined document bytes do not match provider response")
	}
}

func TestDuplicateInitiationsCreateDuplicateEnvelopes(t *testing.T) {
	fp := newFakeProvider(t)

	session, err := fp.client().OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := session.CreateEnvelopeFromTemplate(context.Background(), "Jane Doe", "jane@example.com"); err != nil {
			t.Fatalf("CreateEnvelopeFromTemplate call %d returned error: %v", i+1, err)
		}
	}
	// No idempotency key exists, so the provider sees two envelopes.
	if fp.envelopeCalls != 2 {
		t.Fatalf("expected 2 envelope creations, got %d", fp.envelopeCalls)
	}
}

func TestParsePrivateKey_UnescapesNewlines(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	pemData := privateKeyPEM(t, key)

	escaped := strings.ReplaceAll(pemData, "\n", `\n`)
	parsed, err := ParsePrivateKey(escaped)
	if err != nil {
		t.Fatalf("ParsePrivateKey rejected escaped PEM: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Fatalf("parsed key does not match original")
	}

	if _, err := ParsePrivateKey("not a key"); err == nil {
		t.Fatalf("expected error for garbage key material")
	}
}

func privateKeyPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}
