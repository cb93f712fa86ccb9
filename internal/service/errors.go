package service

import (
	"errors"

	"imagepay/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrCredentialRequired = errors.New("请先选择图片生成服务的 API key")
	ErrInvalidAmount      = errors.New("金额必须大于0")
	ErrInvalidDirection   = errors.New("未知的积分变动方向")
	ErrInvalidMethod      = errors.New("不支持的支付方式")
	ErrInvalidSize        = errors.New("不支持的图片尺寸")
	ErrEmptyPrompt        = errors.New("描述不能为空")
	ErrInvalidInput       = errors.New("参数不合法")
	ErrPlanNotFound       = errors.New("套餐不存在")
	ErrForbidden          = errors.New("无权限执行该操作")
)

// 存储层的错误直接透传给调用方
var (
	ErrDuplicateAccount     = repository.ErrDuplicateAccount
	ErrAccountNotFound      = repository.ErrAccountNotFound
	ErrInsufficientCredits  = repository.ErrBalanceNotEnough
	ErrOptimisticLock       = repository.ErrOptimisticLock
	ErrPaymentNotFound      = repository.ErrPaymentNotFound
	ErrPaymentStatusInvalid = repository.ErrPaymentStatusInvalid
)
