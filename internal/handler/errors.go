package handler

import (
	"errors"
	"log"

	"imagepay/internal/provider"
	"imagepay/internal/service"
	"imagepay/pkg/response"

	"github.com/gin-gonic/gin"
)

var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrAccountNotFound, response.CodeAccountNotFound},
	{service.ErrDuplicateAccount, response.CodeDuplicateAccount},
	{service.ErrInvalidCredentials, response.CodeInvalidCredentials},
	{service.ErrInsufficientCredits, response.CodeInsufficientCredits},
	{service.ErrPaymentNotFound, response.CodePaymentNotFound},
	{service.ErrPaymentStatusInvalid, response.CodePaymentStatusInvalid},
	{service.ErrCredentialRequired, response.CodeCredentialRequired},
	{provider.ErrNoImageReturned, response.CodeNoImageReturned},
	{service.ErrPlanNotFound, response.CodePlanNotFound},
	{service.ErrOptimisticLock, response.CodeSystemBusy},
	{service.ErrForbidden, response.CodeForbidden},
	{service.ErrInvalidAmount, response.CodeParamError},
	{service.ErrInvalidDirection, response.CodeParamError},
	{service.ErrInvalidMethod, response.CodeParamError},
	{service.ErrInvalidSize, response.CodeParamError},
	{service.ErrEmptyPrompt, response.CodeParamError},
	{service.ErrInvalidInput, response.CodeParamError},
}

// writeError 业务错误映射为业务码，其余按服务器错误返回
func writeError(c *gin.Context, err error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			response.BusinessError(c, ec.code, err.Error())
			return
		}
	}

	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		response.BusinessError(c, response.CodeProviderError, pe.Error())
		return
	}

	log.Printf("[Handler] %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	response.ServerError(c, "服务器内部错误")
}
