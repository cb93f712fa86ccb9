// Package provider 外部图片生成服务的客户端。
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoImageReturned = errors.New("图片生成服务未返回图片")

// credentialInvalidPattern 服务端对无效/过期 key 返回的错误信息
const credentialInvalidPattern = "Requested entity was not found"

// ProviderError 图片生成服务返回的错误
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error // 底层错误，可为空
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("图片生成服务错误(%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("图片生成服务错误: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// CredentialInvalid key 无效或已过期，需要用户重新选择 key
func (e *ProviderError) CredentialInvalid() bool {
	return strings.Contains(e.Message, credentialInvalidPattern)
}

type Request struct {
	Prompt string
	Size   string // 1K | 2K | 4K
	APIKey string
}

type Image struct {
	URL   string // data URI 或远程地址
	Model string
}

type Provider interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}
