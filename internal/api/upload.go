package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const cloudinaryBase = "https://api.cloudinary.com/v1_1"

// Cloudinary uploads payment screenshots with an unsigned preset and returns
// the hosted URL. Hosting behaviour beyond that is not our concern.
type Cloudinary struct {
	endpoint string
	preset   string
	http     *http.Client
}

func NewCloudinary(cloud, preset string, h *http.Client) *Cloudinary {
	if h == nil {
		h = &http.Client{Timeout: 60 * time.Second}
	}
	return &Cloudinary{
		endpoint: fmt.Sprintf("%s/%s/image/upload", cloudinaryBase, cloud),
		preset:   preset,
		http:     h,
	}
}

// WithEndpoint points the uploader somewhere else (tests, proxies).
func (u *Cloudinary) WithEndpoint(endpoint string) *Cloudinary {
	cp := *u
	cp.endpoint = endpoint
	return &cp
}

func (u *Cloudinary) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("upload: read image: %w", err)
	}
	if err := mw.WriteField("upload_preset", u.preset); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	var out struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload: decode: %w", err)
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("upload: response carried no secure_url")
	}
	return out.SecureURL, nil
}
