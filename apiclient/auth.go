package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/session"
)

// loginResponse mirrors the fields the platform returns on a
// successful session login; everything else in the payload is
// discarded.
type loginResponse struct {
	ClusterID   string `json:"clusterId"`
	ReleaseVersion string `json:"releaseVersion"`
	Timezone    string `json:"timezone"`
	OrgsEnabled bool   `json:"orgsEnabled"`
	CurrentOrg  struct {
		ID string `json:"id"`
	} `json:"currentOrg"`
	CloudOnPrem string `json:"cloudOnPrem"`
	User        struct {
		GUID       string   `json:"id"`
		Username   string   `json:"name"`
		Privileges []string `json:"privileges"`
	} `json:"currentUser"`
}

func (r loginResponse) toSessionContext(baseURL string) session.Context {
	return session.Context{
		ClusterID:       r.ClusterID,
		BaseURL:         baseURL,
		PlatformVersion: r.ReleaseVersion,
		Timezone:        r.Timezone,
		CloudOnPrem:     r.CloudOnPrem,
		OrgsEnabled:     r.OrgsEnabled,
		OrgID:           r.CurrentOrg.ID,
		User: session.User{
			GUID:       r.User.GUID,
			Username:   r.User.Username,
			Privileges: r.User.Privileges,
		},
	}
}

// LoginSessionCookie authenticates with a username and password,
// establishing a cookie-based session on the underlying HTTP client's
// cookie jar. rememberMe asks the platform to extend the session
// cookie's lifetime past the browser-session default.
func (c *Client) LoginSessionCookie(ctx context.Context, username, password string, rememberMe bool) error {
	body := map[string]interface{}{
		"username":   username,
		"password":   password,
		"rememberme": rememberMe,
	}

	var resp loginResponse
	if err := c.do(ctx, "POST", pathLogin, body, &resp); err != nil {
		return fmt.Errorf("apiclient: session login: %w", err)
	}

	c.setSession(resp.toSessionContext(c.baseURL))
	c.setCredentials(username, password)
	c.startHeartbeat(ctx)
	return nil
}

// LoginFullAccessToken authenticates with a username and password and
// returns a bearer token scoped to the requesting user's full set of
// privileges. The client stores the token and attaches it to every
// subsequent request until Logout is called.
func (c *Client) LoginFullAccessToken(ctx context.Context, username, password, secretKey string) (string, error) {
	body := map[string]interface{}{
		"username":  username,
		"password":  password,
		"secret_key": secretKey,
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "POST", pathTokenFull, body, &resp); err != nil {
		return "", fmt.Errorf("apiclient: token login: %w", err)
	}

	c.setBearer(resp.Token)
	c.setCredentials(username, password)

	var sessionResp loginResponse
	if err := c.do(ctx, "GET", pathSessionUser, nil, &sessionResp); err != nil {
		c.logger.WithError(err).Warn("token login succeeded but session introspection failed")
	} else {
		c.setSession(sessionResp.toSessionContext(c.baseURL))
	}

	c.startHeartbeat(ctx)
	return resp.Token, nil
}

// V1TrustedAuthentication exchanges a cluster secret key for a V1
// trusted-auth token on behalf of username, for clusters still running
// the legacy V1 session endpoints.
func (c *Client) V1TrustedAuthentication(ctx context.Context, username, secretKey string) (string, error) {
	body := map[string]interface{}{
		"username":   username,
		"secret_key": secretKey,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "POST", pathV1TokenAuth, body, &resp); err != nil {
		return "", fmt.Errorf("apiclient: v1 trusted authentication: %w", err)
	}
	return resp.Token, nil
}

// Logout invalidates the current session, clears any stored bearer
// token, and stops the heartbeat.
func (c *Client) Logout(ctx context.Context) error {
	c.stopHeartbeat()
	err := c.do(ctx, "POST", pathLogout, nil, nil)
	c.setBearer("")
	c.setSession(session.Context{})
	if err != nil {
		return fmt.Errorf("apiclient: logout: %w", err)
	}
	return nil
}

// IsActive reports whether the platform still considers the current
// session live, used directly by the heartbeat loop and available for
// callers that want an out-of-band liveness check.
func (c *Client) IsActive(ctx context.Context) (bool, error) {
	var resp struct {
		IsActive bool `json:"isActive"`
	}
	if err := c.do(ctx, "GET", pathIsActive, nil, &resp); err != nil {
		return false, err
	}
	return resp.IsActive, nil
}

// heartbeatInterval is how often the background loop checks session
// liveness. The platform times sessions out well past this, so a
// 30-second cadence is comfortably frequent without hammering the
// endpoint.
const heartbeatInterval = 30 * time.Second

// startHeartbeat begins a background liveness check, first stopping
// any heartbeat from a previous login. The loop runs detached from
// ctx's caller-visible lifetime; it is stopped explicitly by Logout or
// a subsequent login, not by ctx's cancellation alone, though it does
// still exit if ctx is canceled.
func (c *Client) startHeartbeat(ctx context.Context) {
	c.stopHeartbeat()

	hbCtx, cancel := context.WithCancel(ctx)
	c.heartbeatMu.Lock()
	c.heartbeatStop = cancel
	c.heartbeatMu.Unlock()

	go c.runHeartbeat(hbCtx)
}

func (c *Client) stopHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	if c.heartbeatStop != nil {
		c.heartbeatStop()
		c.heartbeatStop = nil
	}
}

func (c *Client) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkID := uuid.NewString()
			active, err := c.IsActive(ctx)
			if err != nil {
				c.logger.WithFields(logrus.Fields{"heartbeat_id": checkID}).WithError(err).Warn("heartbeat: session liveness check failed")
				continue
			}
			if !active {
				c.logger.WithFields(logrus.Fields{"heartbeat_id": checkID}).Warn("heartbeat: platform reports session no longer active")
			}
		}
	}
}
