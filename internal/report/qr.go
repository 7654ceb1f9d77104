package report

import (
	"fmt"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"example.com/linspector/internal/common"
)

// SaveManifestQR hashes reportPath with SHA-256 and writes a QR code PNG of
// that hash to qrPath, for pairing a printed PDF report with its digital
// artifact. It returns the hex-encoded hash.
func SaveManifestQR(reportPath, qrPath string, size int) (string, error) {
	hash, _, err := common.Sha256OfFile(reportPath)
	if err != nil {
		return "", fmt.Errorf("report: hashing %s: %w", reportPath, err)
	}
	png, err := manifestHashToQR(hash, size)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(qrPath, png, 0o644); err != nil {
		return "", fmt.Errorf("report: writing %s: %w", qrPath, err)
	}
	return hash, nil
}

func manifestHashToQR(hash string, size int) ([]byte, error) {
	normalized := sanitizeHash(hash)
	if normalized == "" {
		return nil, fmt.Errorf("report: manifest hash is empty")
	}
	if size <= 0 {
		size = 128
	}
	png, err := qrcode.Encode(normalized, qrcode.Medium, size)
	if err != nil {
		return nil, err
	}
	return png, nil
}

func sanitizeHash(hash string) string {
	upper := strings.ToUpper(strings.TrimSpace(hash))
	if upper == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}
