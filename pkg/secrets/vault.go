package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/fieldservice-locator/pkg/retry"
)

// CollaboratorKeys are the environment variables the locator reads credentials from.
// Only these are imported from Vault unless VaultConfig.Keys overrides the list.
var CollaboratorKeys = []string{
	"GEOCODING_API_KEY",
	"DIRECTIONS_API_KEY",
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"TYPESENSE_API_KEY",
}

// VaultConfig describes where collaborator credentials live in a KV secrets engine.
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	Overwrite bool
	Keys      []string
}

// VaultResult summarises an import.
type VaultResult struct {
	Enabled bool
	Path    string
	Loaded  int
	Skipped int
}

// LoadVaultConfigFromEnv reads VAULT_* variables. It runs before config.Load so the
// imported secrets are visible to it.
func LoadVaultConfigFromEnv() VaultConfig {
	kvVersion := 2
	if val := os.Getenv("VAULT_KV_VERSION"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			kvVersion = parsed
		}
	}
	timeout := 5 * time.Second
	if val := os.Getenv("VAULT_TIMEOUT_MS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			timeout = time.Duration(parsed) * time.Millisecond
		}
	}
	mount := os.Getenv("VAULT_MOUNT")
	if mount == "" {
		mount = "secret"
	}

	return VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     mount,
		Path:      os.Getenv("VAULT_PATH"),
		KVVersion: kvVersion,
		Timeout:   timeout,
		Overwrite: strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true"),
		Keys:      CollaboratorKeys,
	}
}

type vaultStatusError struct {
	code int
	body string
}

func (e *vaultStatusError) Error() string {
	return fmt.Sprintf("vault returned %d: %s", e.code, e.body)
}

// ApplyVaultSecrets fetches the configured secret and exports the allowed keys
// into the process environment.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	result := VaultResult{Enabled: cfg.Enabled, Path: cfg.Path}
	if !cfg.Enabled {
		return result, nil
	}
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return result, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	secretURL, err := buildVaultURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return result, err
	}

	client := &http.Client{Timeout: cfg.Timeout}
	var body []byte
	retryable := func(err error) bool {
		var se *vaultStatusError
		if errors.As(err, &se) {
			return se.code >= 500
		}
		return true
	}
	err = retry.Do(ctx, retry.RequestConfig(retryable), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, secretURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("X-Vault-Token", cfg.Token)
		if cfg.Namespace != "" {
			req.Header.Set("X-Vault-Namespace", cfg.Namespace)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &vaultStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
		}
		body = b
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("vault fetch failed: %w", err)
	}

	data, err := extractVaultData(body, cfg.KVVersion)
	if err != nil {
		return result, err
	}

	allowed := make(map[string]struct{}, len(cfg.Keys))
	for _, k := range cfg.Keys {
		allowed[k] = struct{}{}
	}

	for key, raw := range data {
		if _, ok := allowed[key]; !ok {
			continue
		}
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped++
			continue
		}
		if err := os.Setenv(key, stringifyVaultValue(raw)); err != nil {
			return result, err
		}
		result.Loaded++
	}

	return result, nil
}

func buildVaultURL(addr, mount, path string, kvVersion int) (string, error) {
	addr = strings.TrimRight(addr, "/")
	mount = strings.Trim(mount, "/")
	path = strings.TrimLeft(path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount, and path must be set")
	}
	if kvVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

type kvV1Response struct {
	Data map[string]json.RawMessage `json:"data"`
}

type kvV2Response struct {
	Data struct {
		Data map[string]json.RawMessage `json:"data"`
	} `json:"data"`
}

func extractVaultData(body []byte, kvVersion int) (map[string]json.RawMessage, error) {
	if kvVersion == 1 {
		var v1 kvV1Response
		if err := json.Unmarshal(body, &v1); err != nil {
			return nil, fmt.Errorf("decode vault response: %w", err)
		}
		if v1.Data == nil {
			return nil, errors.New("vault response missing data for KV v1")
		}
		return v1.Data, nil
	}

	var v2 kvV2Response
	if err := json.Unmarshal(body, &v2); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	if v2.Data.Data == nil {
		return nil, errors.New("vault response missing data for KV v2")
	}
	return v2.Data.Data, nil
}

func stringifyVaultValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
