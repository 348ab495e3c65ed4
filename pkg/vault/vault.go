// Package vault validates and normalizes the target vault configuration
// of a gateway request.
//
// A vault is addressed by its ID and URL. The cluster ID used for tenant
// routing is never supplied directly; it is always derived from the URL.
package vault

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidConfig is the sentinel wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid vault configuration")

// Validation failures. Each one wraps ErrInvalidConfig.
var (
	ErrMissingVaultID = fmt.Errorf("%w: vaultId is required (pass the vaultId query parameter or set VAULT_ID)", ErrInvalidConfig)

	ErrMissingVaultURL = fmt.Errorf("%w: vaultUrl is required (pass the vaultUrl query parameter or set VAULT_URL)", ErrInvalidConfig)

	ErrInvalidVaultURL = fmt.Errorf("%w: vaultUrl must look like https://<clusterId>.vault.<domain>", ErrInvalidConfig)
)

// Params holds the raw, possibly incomplete vault parameters of a request.
type Params struct {
	VaultID     string `yaml:"vault_id"`
	VaultURL    string `yaml:"vault_url"`
	AccountID   string `yaml:"account_id"`
	WorkspaceID string `yaml:"workspace_id"`
}

// Merge returns p with every empty field filled from defaults.
func (p Params) Merge(defaults Params) Params {
	if strings.TrimSpace(p.VaultID) == "" {
		p.VaultID = defaults.VaultID
	}
	if strings.TrimSpace(p.VaultURL) == "" {
		p.VaultURL = defaults.VaultURL
	}
	if strings.TrimSpace(p.AccountID) == "" {
		p.AccountID = defaults.AccountID
	}
	if strings.TrimSpace(p.WorkspaceID) == "" {
		p.WorkspaceID = defaults.WorkspaceID
	}
	return p
}

// IsPlaceholder reports whether both the vault ID and URL are literal,
// un-rendered template tokens.
func (p Params) IsPlaceholder() bool {
	return LooksLikePlaceholder(p.VaultID) && LooksLikePlaceholder(p.VaultURL)
}

// Config is a validated vault configuration. It is immutable once built.
type Config struct {
	VaultID     string
	VaultURL    string
	ClusterID   string
	AccountID   string
	WorkspaceID string
}

// Result carries the outcome of Validate.
type Result struct {
	Valid  bool
	Err    error   // set only when Valid is false
	Config *Config // set only when Valid is true
}

// Validate checks that p names a reachable vault and derives its cluster ID.
func Validate(p Params) Result {
	vaultID := strings.TrimSpace(p.VaultID)
	if vaultID == "" {
		return Result{Err: ErrMissingVaultID}
	}

	vaultURL := strings.TrimSpace(p.VaultURL)
	if vaultURL == "" {
		return Result{Err: ErrMissingVaultURL}
	}

	clusterID, ok := ExtractClusterID(vaultURL)
	if !ok {
		return Result{Err: fmt.Errorf("%w, got %q", ErrInvalidVaultURL, vaultURL)}
	}

	return Result{
		Valid: true,
		Config: &Config{
			VaultID:     vaultID,
			VaultURL:    vaultURL,
			ClusterID:   clusterID,
			AccountID:   strings.TrimSpace(p.AccountID),
			WorkspaceID: strings.TrimSpace(p.WorkspaceID),
		},
	}
}

var clusterIDPattern = regexp.MustCompile(`^(?:https?://)?([^./]+)\.vault\.`)

// ExtractClusterID returns the dot-delimited segment preceding ".vault." in
// a vault URL, e.g. "abc" for "https://abc.vault.skyflowapis.com".
func ExtractClusterID(vaultURL string) (string, bool) {
	m := clusterIDPattern.FindStringSubmatch(strings.TrimSpace(vaultURL))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// placeholderPatterns match ${NAME}, $NAME, {{NAME}} and %NAME%.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\$\{[A-Z_][A-Z0-9_]*\}$`),
	regexp.MustCompile(`(?i)^\$[A-Z_][A-Z0-9_]*$`),
	regexp.MustCompile(`(?i)^\{\{[A-Z_][A-Z0-9_]*\}\}$`),
	regexp.MustCompile(`(?i)^%[A-Z_][A-Z0-9_]*%$`),
}

// LooksLikePlaceholder reports whether v is an un-substituted template
// variable. The empty string is never a placeholder.
func LooksLikePlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, re := range placeholderPatterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}
