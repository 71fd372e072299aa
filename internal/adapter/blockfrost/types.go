package blockfrost

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// policyAssetJSON is one element of GET /assets/policy/{policy_id}
type policyAssetJSON struct {
	Asset    string `json:"asset"`
	Quantity string `json:"quantity"`
}

// assetJSON is the body of GET /assets/{asset}
type assetJSON struct {
	Asset           string           `json:"asset"`
	PolicyID        string           `json:"policy_id"`
	AssetName       *string          `json:"asset_name"`
	Fingerprint     string           `json:"fingerprint"`
	Quantity        string           `json:"quantity"`
	OnchainMetadata *onchainMetadata `json:"onchain_metadata"`
}

type onchainMetadata struct {
	Name      flexString `json:"name"`
	Image     flexString `json:"image"`
	MediaType flexString `json:"mediaType"`
	Files     []fileJSON `json:"files"`
}

type fileJSON struct {
	Name      flexString `json:"name"`
	MediaType flexString `json:"mediaType"`
	Src       flexString `json:"src"`
}

// errorJSON is the error body Blockfrost returns with non-2xx statuses
type errorJSON struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// flexString decodes CIP-25 text fields, which are either a string or an
// array of string chunks (the chain limits strings to 64 bytes).
// Other JSON types decode to the empty string.
type flexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		var sb strings.Builder
		for i, p := range parts {
			var s string
			if err := json.Unmarshal(p, &s); err != nil {
				return fmt.Errorf("chunk %d is not a string", i)
			}
			sb.WriteString(s)
		}
		*f = flexString(sb.String())
	default:
		*f = ""
	}
	return nil
}

func (f flexString) String() string {
	return strings.TrimSpace(string(f))
}
