package application

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

const (
	armorHeader = "-----BEGIN RGB PAYLOAD-----"
	armorFooter = "-----END RGB PAYLOAD-----"
	armorWidth  = 64
)

// encodeFormats renders an opaque payload in the three interchange forms
// exchanged between parties: compact base64, strict hex and ASCII armor.
func encodeFormats(payload []byte) domain.ContractFormats {
	return domain.ContractFormats{
		Legacy:  base64.RawStdEncoding.EncodeToString(payload),
		Strict:  hex.EncodeToString(payload),
		Armored: armorEncode(payload),
	}
}

// decodeAnyFormat parses a payload encoded in any of the three interchange
// forms.
func decodeAnyFormat(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if len(encoded) <= 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if strings.HasPrefix(encoded, armorHeader) {
		return armorDecode(encoded)
	}
	if payload, err := hex.DecodeString(encoded); err == nil {
		return payload, nil
	}
	if payload, err := base64.RawStdEncoding.DecodeString(encoded); err == nil {
		return payload, nil
	}
	return nil, fmt.Errorf("payload is neither armored, hex nor base64")
}

func armorEncode(payload []byte) string {
	body := base64.StdEncoding.EncodeToString(payload)
	var sb strings.Builder
	sb.WriteString(armorHeader)
	for i := 0; i < len(body); i += armorWidth {
		end := i + armorWidth
		if end > len(body) {
			end = len(body)
		}
		sb.WriteString("\n")
		sb.WriteString(body[i:end])
	}
	sb.WriteString("\n")
	sb.WriteString(armorFooter)
	return sb.String()
}

func armorDecode(armored string) ([]byte, error) {
	body, ok := strings.CutPrefix(armored, armorHeader)
	if !ok {
		return nil, fmt.Errorf("missing armor header")
	}
	body, ok = strings.CutSuffix(strings.TrimSpace(body), armorFooter)
	if !ok {
		return nil, fmt.Errorf("missing armor footer")
	}
	body = strings.ReplaceAll(strings.TrimSpace(body), "\n", "")
	payload, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("malformed armor body: %w", err)
	}
	return payload, nil
}
