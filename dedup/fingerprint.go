package dedup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// NormalizeTarget returns the canonical form of a target URL: lowercase
// scheme and host, default port removed, empty path as "/", query keys
// sorted, fragment dropped.
func NormalizeTarget(target string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("dedup: parse target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("dedup: target %q is not an absolute URL", target)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[u.Scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// CanonicalParams re-encodes params with sorted object keys and no
// insignificant whitespace. Empty input and JSON null become "{}".
func CanonicalParams(params json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("dedup: decode params: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("dedup: params must be a JSON object")
	}
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("dedup: encode params: %w", err)
	}
	return out, nil
}

// Fingerprint identifies "the same request". It returns the hex digest
// along with the normalized target and canonical params it was computed
// from.
func Fingerprint(target, strategy string, params json.RawMessage) (fp, normTarget string, canon json.RawMessage, err error) {
	normTarget, err = NormalizeTarget(target)
	if err != nil {
		return "", "", nil, err
	}
	canon, err = CanonicalParams(params)
	if err != nil {
		return "", "", nil, err
	}

	h := sha256.New()
	h.Write([]byte(normTarget))
	h.Write([]byte{0})
	h.Write([]byte(strategy))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), normTarget, canon, nil
}
