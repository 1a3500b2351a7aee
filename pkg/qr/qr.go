package qr

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const tokenPrefix = "attendance"

// Token is the payload embedded in an attendance QR image.
type Token struct {
	CourseID string
	BranchID string
	IssuedAt int64
}

// Encode renders the token in its wire form
// "attendance:<course_id>:<branch_id>:<unix>".
func (t Token) Encode() string {
	return fmt.Sprintf("%s:%s:%s:%d", tokenPrefix, t.CourseID, t.BranchID, t.IssuedAt)
}

// ParseToken decodes a scanned QR payload.
func ParseToken(raw string) (Token, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 || parts[0] != tokenPrefix {
		return Token{}, fmt.Errorf("malformed attendance token")
	}
	issued, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("malformed token timestamp")
	}
	if parts[1] == "" || parts[2] == "" {
		return Token{}, fmt.Errorf("malformed attendance token")
	}
	return Token{CourseID: parts[1], BranchID: parts[2], IssuedAt: issued}, nil
}

// RenderPNG encodes the token into a QR image and returns it base64-encoded,
// ready for embedding in a JSON response.
func RenderPNG(t Token) (string, error) {
	png, err := qrcode.Encode(t.Encode(), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("render qr image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
