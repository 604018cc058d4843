package report

import (
	"encoding/json"
	"fmt"
	"os"

	"example.com/siwegate/internal/crypto"
	"example.com/siwegate/internal/rules"
)

func marshalReport(rep rules.Report) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

func SaveReportJSON(rep rules.Report, out string) error {
	b, err := marshalReport(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadReportJSON(path string) (rules.Report, error) {
	var rep rules.Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

// SaveReportJWS signs the JSON form of rep with the RSA key in keyPath and
// writes the flattened JWS to out.
func SaveReportJWS(rep rules.Report, keyPath, kid, out string) error {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}
	payload, err := marshalReport(rep)
	if err != nil {
		return err
	}
	j, err := crypto.SignJWS(payload, keyPEM, kid)
	if err != nil {
		return fmt.Errorf("sign report: %w", err)
	}
	b, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// VerifyReportJWS checks a signed report against the public key or
// certificate in pubPath and returns the embedded report.
func VerifyReportJWS(path, pubPath string) (rules.Report, error) {
	var rep rules.Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	var j crypto.JWS
	if err := json.Unmarshal(b, &j); err != nil {
		return rep, fmt.Errorf("decode jws: %w", err)
	}
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return rep, fmt.Errorf("read public key: %w", err)
	}
	payload, err := crypto.VerifyJWS(j, pubPEM)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(payload, &rep)
	return rep, err
}
