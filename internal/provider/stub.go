package provider

import (
	"context"
)

// 1x1 透明 PNG
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// StubProvider 本地开发用，不访问外部服务，直接返回占位图
type StubProvider struct {
	Model string
}

func (p StubProvider) Generate(ctx context.Context, req Request) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := p.Model
	if model == "" {
		model = "stub"
	}
	return &Image{URL: "data:image/png;base64," + placeholderPNG, Model: model}, nil
}
