package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	// accessPolicyName is the fixed policy name used for every protected
	// hostname; the duplicate-recovery path finds the policy by it.
	accessPolicyName = "Allow Muraqib App"

	// accessTokenDuration is one year.
	accessTokenDuration = "8760h"

	accessSessionDuration = "24h"
)

// ServiceToken is a remote Access service token. ClientSecret is only
// populated by the create call; list responses omit it.
type ServiceToken struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// AccessApplication is a remote self-hosted Access application.
type AccessApplication struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// AccessRule is one entry of a policy or group include/exclude/require
// array. Only the service_token shape is interesting here; other rule
// kinds are ignored on decode.
type AccessRule struct {
	ServiceToken *ServiceTokenRule `json:"service_token,omitempty"`
}

// ServiceTokenRule references a service token by its remote UUID.
type ServiceTokenRule struct {
	TokenID string `json:"token_id"`
}

// AccessPolicy is a remote Access policy under an application.
type AccessPolicy struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Decision string       `json:"decision"`
	Include  []AccessRule `json:"include"`
	Exclude  []AccessRule `json:"exclude"`
	Require  []AccessRule `json:"require"`
}

// AccessGroup is a remote Access group.
type AccessGroup struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Include []AccessRule `json:"include"`
	Exclude []AccessRule `json:"exclude"`
	Require []AccessRule `json:"require"`
}

// ProtectionCredentials is what provisioning a hostname yields: the remote
// IDs of the triple plus the one-time client credentials.
type ProtectionCredentials struct {
	AppID        string `json:"app_id"`
	TokenID      string `json:"token_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	PolicyID     string `json:"policy_id"`
}

// ProtectHostname provisions the Zero Trust triple gating hostname behind a
// client-credential check: a fresh service token, a self-hosted application
// for the hostname, and a non_identity allow policy referencing the token.
//
// The application and policy steps each recover from "already exists"
// rejections by listing and matching, so a crash mid-sequence (or a
// previous partial run) is repaired on the next attempt rather than
// surfaced. The policy recovery updates the found policy to reference the
// just-created token, keeping it consistent with rotated credentials.
func (c *Client) ProtectHostname(ctx context.Context, hostname string) (*ProtectionCredentials, error) {
	token, err := c.createServiceToken(ctx, hostname)
	if err != nil {
		return nil, err
	}

	app, err := c.createApplication(ctx, hostname)
	if err != nil {
		if !apiErrorContains(err, "application_already_exists") {
			return nil, err
		}
		app, err = c.findApplicationForDomain(ctx, hostname)
		if err != nil {
			return nil, err
		}
	}

	policy, err := c.createTokenPolicy(ctx, app.ID, token.ID)
	if err != nil {
		if !apiErrorContains(err, "policy_already_exists", "Duplicate") {
			return nil, err
		}
		policy, err = c.repointTokenPolicy(ctx, app.ID, token.ID)
		if err != nil {
			return nil, err
		}
	}

	return &ProtectionCredentials{
		AppID:        app.ID,
		TokenID:      token.ID,
		ClientID:     token.ClientID,
		ClientSecret: token.ClientSecret,
		PolicyID:     policy.ID,
	}, nil
}

func (c *Client) createServiceToken(ctx context.Context, hostname string) (*ServiceToken, error) {
	body := map[string]string{
		"name":     "Muraqib-" + hostname,
		"duration": accessTokenDuration,
	}
	var out ServiceToken
	if err := c.do(ctx, http.MethodPost, c.accountPath("/access/service_tokens"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) createApplication(ctx context.Context, hostname string) (*AccessApplication, error) {
	body := map[string]string{
		"name":             "Protect " + hostname,
		"domain":           hostname,
		"type":             "self_hosted",
		"session_duration": accessSessionDuration,
	}
	var out AccessApplication
	if err := c.do(ctx, http.MethodPost, c.accountPath("/access/apps"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// findApplicationForDomain recovers the application that already owns
// hostname: match on the domain field first, then on the conventional
// name. Without a match there is no safe way to proceed.
func (c *Client) findApplicationForDomain(ctx context.Context, hostname string) (*AccessApplication, error) {
	apps, err := c.listApplications(ctx)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].Domain == hostname {
			return &apps[i], nil
		}
	}
	for i := range apps {
		if apps[i].Name == "Protect "+hostname {
			return &apps[i], nil
		}
	}
	return nil, fmt.Errorf("cloudflare: application for %q reported as existing but not found in listing", hostname)
}

func tokenPolicyBody(tokenID string) map[string]interface{} {
	return map[string]interface{}{
		"name":     accessPolicyName,
		"decision": "non_identity",
		"include": []AccessRule{
			{ServiceToken: &ServiceTokenRule{TokenID: tokenID}},
		},
	}
}

func (c *Client) createTokenPolicy(ctx context.Context, appID, tokenID string) (*AccessPolicy, error) {
	var out AccessPolicy
	err := c.do(ctx, http.MethodPost, c.accountPath("/access/apps/"+appID+"/policies"), nil, tokenPolicyBody(tokenID), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// repointTokenPolicy finds the conventionally named policy under the app
// and updates it to reference tokenID.
func (c *Client) repointTokenPolicy(ctx context.Context, appID, tokenID string) (*AccessPolicy, error) {
	policies, err := c.listAppPolicies(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if p.Name != accessPolicyName {
			continue
		}
		var out AccessPolicy
		err := c.do(ctx, http.MethodPut, c.accountPath("/access/apps/"+appID+"/policies/"+p.ID), nil, tokenPolicyBody(tokenID), &out)
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, fmt.Errorf("cloudflare: policy %q reported as duplicate but not found under app %s", accessPolicyName, appID)
}

func (c *Client) listApplications(ctx context.Context) ([]AccessApplication, error) {
	var apps []AccessApplication
	err := c.listAll(ctx, c.accountPath("/access/apps"), nil, func(result json.RawMessage) error {
		var page []AccessApplication
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode access apps: %w", err)
		}
		apps = append(apps, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) listAppPolicies(ctx context.Context, appID string) ([]AccessPolicy, error) {
	var policies []AccessPolicy
	err := c.listAll(ctx, c.accountPath("/access/apps/"+appID+"/policies"), nil, func(result json.RawMessage) error {
		var page []AccessPolicy
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode access policies: %w", err)
		}
		policies = append(policies, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (c *Client) listAccessGroups(ctx context.Context) ([]AccessGroup, error) {
	var groups []AccessGroup
	err := c.listAll(ctx, c.accountPath("/access/groups"), nil, func(result json.RawMessage) error {
		var page []AccessGroup
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode access groups: %w", err)
		}
		groups = append(groups, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) listServiceTokens(ctx context.Context) ([]ServiceToken, error) {
	var tokens []ServiceToken
	err := c.listAll(ctx, c.accountPath("/access/service_tokens"), nil, func(result json.RawMessage) error {
		var page []ServiceToken
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("cloudflare: decode service tokens: %w", err)
		}
		tokens = append(tokens, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// ResolveServiceTokenID finds a service token's remote UUID by its client
// ID. Needed for rows that predate storing the UUID locally.
func (c *Client) ResolveServiceTokenID(ctx context.Context, clientID string) (string, error) {
	tokens, err := c.listServiceTokens(ctx)
	if err != nil {
		return "", err
	}
	for _, tok := range tokens {
		if tok.ClientID == clientID {
			return tok.ID, nil
		}
	}
	return "", nil
}

// AppPolicy pairs a policy with the application it belongs to, so it can
// be deleted later.
type AppPolicy struct {
	AppID  string       `json:"app_id"`
	Policy AccessPolicy `json:"policy"`
}

// TokenUsage lists every group and policy referencing a service token.
type TokenUsage struct {
	Groups   []AccessGroup `json:"groups"`
	Policies []AppPolicy   `json:"policies"`
}

// FindTokenUsage scans all Access groups and, per application, all
// policies, collecting those whose include/exclude/require arrays
// reference the token. A full scan per call; account-level object counts
// keep it cheap.
func (c *Client) FindTokenUsage(ctx context.Context, tokenID string) (*TokenUsage, error) {
	usage := &TokenUsage{}

	groups, err := c.listAccessGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if rulesReference(tokenID, g.Include, g.Exclude, g.Require) {
			usage.Groups = append(usage.Groups, g)
		}
	}

	apps, err := c.listApplications(ctx)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		policies, err := c.listAppPolicies(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			if rulesReference(tokenID, p.Include, p.Exclude, p.Require) {
				usage.Policies = append(usage.Policies, AppPolicy{AppID: app.ID, Policy: p})
			}
		}
	}
	return usage, nil
}

func rulesReference(tokenID string, ruleSets ...[]AccessRule) bool {
	for _, rules := range ruleSets {
		for _, r := range rules {
			if r.ServiceToken != nil && r.ServiceToken.TokenID == tokenID {
				return true
			}
		}
	}
	return false
}

// CleanupResult reports a partial-failure-tolerant batch deletion: every
// dependent object is attempted, successes and failures collected rather
// than stopping at the first error, so callers can report a mixed outcome
// and retry only what is left.
type CleanupResult struct {
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors"`
}

// DeleteTokenDependencies deletes every group and policy referencing the
// token. Only the usage scan itself can fail the call; individual
// deletions cannot.
func (c *Client) DeleteTokenDependencies(ctx context.Context, tokenID string) (*CleanupResult, error) {
	usage, err := c.FindTokenUsage(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	res := &CleanupResult{}
	for _, g := range usage.Groups {
		ref := "group:" + g.ID
		if err := c.do(ctx, http.MethodDelete, c.accountPath("/access/groups/"+g.ID), nil, nil, nil); err != nil {
			res.Errors = append(res.Errors, ref+": "+err.Error())
			continue
		}
		res.Deleted = append(res.Deleted, ref)
	}
	for _, ap := range usage.Policies {
		ref := "policy:" + ap.Policy.ID
		if err := c.do(ctx, http.MethodDelete, c.accountPath("/access/apps/"+ap.AppID+"/policies/"+ap.Policy.ID), nil, nil, nil); err != nil {
			res.Errors = append(res.Errors, ref+": "+err.Error())
			continue
		}
		res.Deleted = append(res.Deleted, ref)
	}
	return res, nil
}

// ProtectionDeletion reports the best-effort teardown of a protection.
// The caller decides, from these flags, whether the local record may be
// dropped or must be kept for retry.
type ProtectionDeletion struct {
	TokenDeleted bool     `json:"token_deleted"`
	AppDeleted   bool     `json:"app_deleted"`
	Errors       []string `json:"errors,omitempty"`
}

// DeleteProtection tears down the remote triple for a protected hostname.
// The service token UUID is taken from tokenID when the local record has
// it; legacy records pass an empty tokenID and the UUID is resolved by
// listing tokens and matching on clientID. Callers that already resolved
// the token pass its outcome as tokenID with an empty clientID, so the
// list scan runs at most once per request. Token and application deletions
// are independent and best-effort.
func (c *Client) DeleteProtection(ctx context.Context, tokenID, clientID, appID string) *ProtectionDeletion {
	res := &ProtectionDeletion{}

	id := tokenID
	if id == "" && clientID != "" {
		resolved, err := c.ResolveServiceTokenID(ctx, clientID)
		if err != nil {
			res.Errors = append(res.Errors, "resolve token: "+err.Error())
		}
		id = resolved
	}
	if id != "" {
		if err := c.do(ctx, http.MethodDelete, c.accountPath("/access/service_tokens/"+id), nil, nil, nil); err != nil {
			res.Errors = append(res.Errors, "delete token: "+err.Error())
		} else {
			res.TokenDeleted = true
		}
	}

	if appID != "" {
		if err := c.do(ctx, http.MethodDelete, c.accountPath("/access/apps/"+appID), nil, nil, nil); err != nil {
			res.Errors = append(res.Errors, "delete app: "+err.Error())
		} else {
			res.AppDeleted = true
		}
	}
	return res
}
