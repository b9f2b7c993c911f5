// Package syncproto implements the HTTP client side of the distributed
// sync protocol (spec §4.8/§6): establishing a session, cloning a
// remote repository, pulling changes with a three-way merge, and
// pushing local changes. It is the one layer of this module that
// reaches outside the local filesystem, grounded on
// original_source/src/clone.cpp (pullIssue/pushIssue/mergeEntry,
// signin/storeSessid/loadSessid).
package syncproto

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// sessidCookiePrefix is the cookie-name prefix the server uses for its
// session cookie, matching original_source's COOKIE_SESSID_PREFIX.
const sessidCookiePrefix = "smit-sessid-"

// Session is a signed-in connection to a remote smit root: the root
// URL and the session cookie signin() returned.
type Session struct {
	RootURL string
	Cookie  string // full "name=value" cookie string, empty if anonymous
}

// CredentialStore persists a Session's cookie and remote URL across
// invocations, matching original_source's ".smit/sessid" and
// ".smit/remote" dotfiles (clone.cpp: storeSessid/loadSessid,
// storeUrl/loadUrl).
type CredentialStore interface {
	Load() (Session, error)
	Store(Session) error
}

// DirCredentialStore stores a Session as two files, "sessid" and
// "remote", under Dir -- the same shape as the original's ".smit/"
// directory, generalized to any directory the caller manages.
type DirCredentialStore struct {
	Dir string
}

func (d DirCredentialStore) sessidPath() string { return filepath.Join(d.Dir, "sessid") }
func (d DirCredentialStore) remotePath() string { return filepath.Join(d.Dir, "remote") }

// Load reads the stored session, tolerating a missing sessid (an
// anonymous session) but requiring the remote URL to be present.
func (d DirCredentialStore) Load() (Session, error) {
	url, err := os.ReadFile(d.remotePath())
	if err != nil {
		return Session{}, fmt.Errorf("syncproto: read remote url: %w", err)
	}
	var cookie string
	if data, err := os.ReadFile(d.sessidPath()); err == nil {
		cookie = strings.TrimSpace(string(data))
	}
	return Session{RootURL: strings.TrimSpace(string(url)), Cookie: cookie}, nil
}

// Store persists s's cookie and root URL, creating Dir if needed.
func (d DirCredentialStore) Store(s Session) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("syncproto: mkdir %s: %w", d.Dir, err)
	}
	if s.Cookie != "" {
		if err := os.WriteFile(d.sessidPath(), []byte(s.Cookie+"\n"), 0o600); err != nil {
			return fmt.Errorf("syncproto: write sessid: %w", err)
		}
	}
	if err := os.WriteFile(d.remotePath(), []byte(s.RootURL+"\n"), 0o644); err != nil {
		return fmt.Errorf("syncproto: write remote: %w", err)
	}
	return nil
}

// Signin posts credentials to rootURL+"/signin" and extracts the
// server's session cookie from the response, matching
// original_source/src/clone.cpp::signin. An empty returned Session.Cookie
// (with a nil error) means the server did not set a recognizable
// session cookie -- the caller should treat that as an authentication
// failure, same as the original ("Authentication failed").
func Signin(c *Client, username, password string) (Session, error) {
	form := fmt.Sprintf("username=%s&password=%s", urlQueryEscape(username), urlQueryEscape(password))
	req, err := http.NewRequest(http.MethodPost, c.rootURL+"/signin", strings.NewReader(form))
	if err != nil {
		return Session{}, fmt.Errorf("syncproto: signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return Session{}, fmt.Errorf("syncproto: signin: %w", err)
	}
	defer resp.Body.Close()

	for _, ck := range resp.Cookies() {
		if strings.HasPrefix(ck.Name, sessidCookiePrefix) {
			return Session{RootURL: c.rootURL, Cookie: ck.Name + "=" + ck.Value}, nil
		}
	}
	return Session{RootURL: c.rootURL}, nil
}

func urlQueryEscape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
