package chatconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Selection is the resolved account, credentials and room for one command.
type Selection struct {
	AccountName string
	ServerName  string
	BaseURL     string
	Token       string
	URNPrefix   string

	PersonID    string
	DisplayName string
	RoomID      string
}

type ResolveOptions struct {
	AccountName string
	RoomID      string

	WorkingDir string
	Context    *DirContext

	BaseURLOverride string
	TokenOverride   string

	// AllowEnvOverrides enables SPACECHAT_ACCOUNT, SPACECHAT_SERVER,
	// SPACECHAT_URL, SPACECHAT_TOKEN and SPACECHAT_ROOM.
	AllowEnvOverrides bool
}

// Resolve picks the account in order: explicit, SPACECHAT_ACCOUNT, directory
// context, global default. A URL plus token from flags or env works without
// any configured account.
func Resolve(global *GlobalConfig, opts ResolveOptions) (*Selection, error) {
	if global == nil {
		global = &GlobalConfig{}
	}
	global.ensureMaps()

	env := func(key string) string {
		if !opts.AllowEnvOverrides {
			return ""
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	ctx := opts.Context
	if ctx == nil && strings.TrimSpace(opts.WorkingDir) != "" {
		loaded, _, err := LoadContextFromDir(opts.WorkingDir)
		switch {
		case err == nil:
			ctx = loaded
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("invalid directory context: %w", err)
		}
	}

	accountName := firstNonEmpty(opts.AccountName, env("SPACECHAT_ACCOUNT"))
	if accountName == "" && ctx != nil {
		accountName = strings.TrimSpace(ctx.DefaultAccount)
	}
	if accountName == "" {
		accountName = strings.TrimSpace(global.DefaultAccount)
	}

	baseURL := firstNonEmpty(opts.BaseURLOverride, env("SPACECHAT_URL"))
	if baseURL != "" {
		if err := ValidateBaseURL(baseURL); err != nil {
			return nil, fmt.Errorf("invalid server URL: %w", err)
		}
	}
	token := firstNonEmpty(opts.TokenOverride, env("SPACECHAT_TOKEN"))

	sel := &Selection{AccountName: accountName, BaseURL: baseURL, Token: token}
	if accountName != "" {
		acct, ok := global.Accounts[accountName]
		if !ok {
			return nil, fmt.Errorf("unknown account %q (run spacechat login or edit your config file)", accountName)
		}
		sel.ServerName = firstNonEmpty(env("SPACECHAT_SERVER"), acct.Server)
		if sel.ServerName == "" && sel.BaseURL == "" {
			return nil, fmt.Errorf("account %q missing server", accountName)
		}
		if sel.Token == "" {
			sel.Token = strings.TrimSpace(acct.Token)
		}
		sel.PersonID = strings.TrimSpace(acct.PersonID)
		sel.DisplayName = strings.TrimSpace(acct.DisplayName)
		sel.RoomID = strings.TrimSpace(acct.DefaultRoom)
	} else {
		sel.ServerName = env("SPACECHAT_SERVER")
	}

	if sel.BaseURL == "" {
		if sel.ServerName == "" {
			return nil, errors.New("no account configured (run spacechat login, set default_account, or set SPACECHAT_URL and SPACECHAT_TOKEN)")
		}
		u, err := resolveServerURL(global, sel.ServerName)
		if err != nil {
			return nil, err
		}
		sel.BaseURL = u
	}
	if sel.ServerName == "" {
		name, err := DeriveServerNameFromURL(sel.BaseURL)
		if err != nil {
			return nil, err
		}
		sel.ServerName = name
	}
	if srv, ok := global.Servers[sel.ServerName]; ok {
		sel.URNPrefix = strings.TrimSpace(srv.URNPrefix)
	}
	if sel.Token == "" {
		return nil, fmt.Errorf("no token for %s (run spacechat login or set SPACECHAT_TOKEN)", sel.ServerName)
	}

	room := firstNonEmpty(opts.RoomID, env("SPACECHAT_ROOM"))
	if room == "" && ctx != nil {
		room = strings.TrimSpace(ctx.DefaultRoom)
	}
	if room != "" {
		sel.RoomID = room
	}
	return sel, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolveServerURL(global *GlobalConfig, serverName string) (string, error) {
	if srv, ok := global.Servers[serverName]; ok && strings.TrimSpace(srv.URL) != "" {
		return strings.TrimSpace(srv.URL), nil
	}
	return DeriveBaseURLFromServerName(serverName)
}

// DeriveBaseURLFromServerName treats name as host[:port], using http for loopback hosts.
func DeriveBaseURLFromServerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty server name")
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name, nil
	}
	scheme := "https"
	if strings.HasPrefix(name, "localhost") || strings.HasPrefix(name, "127.0.0.1") || strings.HasPrefix(name, "[::1]") {
		scheme = "http"
	}
	return scheme + "://" + name, nil
}

func DeriveServerNameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url missing host: %q", raw)
	}
	return u.Host, nil
}

func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty base URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", raw)
	}
	return nil
}
