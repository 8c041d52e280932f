package report

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fixed AES-256-CBC parameters shared with the collection service.
var (
	telemetryKey, _ = base64.StdEncoding.DecodeString("DP/B868Op9Ataw0l2YGtaS822jt26XWv7e3vMVa5zFI=")
	telemetryIV, _  = base64.StdEncoding.DecodeString("3rqBYyUB02E5HLOCI2i/2A==")
)

type telemetry struct {
	endpoint   string
	appVersion string
	client     *http.Client
	timeout    time.Duration
}

type telemetryPayload struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	Content    string `json:"content"`
}

func (t *telemetry) send(msg string) error {
	content, err := Encrypt(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(telemetryPayload{
		AppName:    AppName,
		AppVersion: t.appVersion,
		Content:    content,
	})
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telemetry endpoint returned %d: %s", resp.StatusCode, string(b))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Encrypt returns base64(AES-256-CBC(PKCS#7(msg))) under the fixed
// telemetry key.
func Encrypt(msg string) (string, error) {
	block, err := aes.NewCipher(telemetryKey)
	if err != nil {
		return "", fmt.Errorf("telemetry cipher: %w", err)
	}
	plain := pkcs7Pad([]byte(msg), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, telemetryIV).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(content string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(raw))
	}
	block, err := aes.NewCipher(telemetryKey)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, telemetryIV).CryptBlocks(out, raw)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) (string, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return "", fmt.Errorf("invalid padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return "", fmt.Errorf("invalid padding")
		}
	}
	return string(b[:len(b)-n]), nil
}
