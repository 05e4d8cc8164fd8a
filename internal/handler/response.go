// Package handler HTTP 路由处理
package handler

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/middleware"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessPaged 分页响应
func SuccessPaged(c *gin.Context, items interface{}, page *repository.Pagination) {
	c.JSON(http.StatusOK, dto.NewPagedResponse(items, page.Total, page.Page, page.PageSize))
}

// Fail 错误响应, HTTP 状态码由错误分类决定
func Fail(c *gin.Context, err error) {
	status := apperrors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, dto.NewErrorResponse(err))
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		Fail(c, apperrors.ErrInvalidRequest.WithMessage(err.Error()))
		return false
	}
	return true
}

// caller 已认证的钱包地址, 未认证时写入错误响应
func caller(c *gin.Context) (common.Address, bool) {
	addr, ok := middleware.Wallet(c)
	if !ok {
		Fail(c, apperrors.ErrUnauthorized)
		return common.Address{}, false
	}
	return addr, true
}

func pathAddress(c *gin.Context, name string) (common.Address, bool) {
	addr, err := dto.ParseAddress(name, c.Param(name))
	if err != nil {
		Fail(c, err)
		return common.Address{}, false
	}
	return addr, true
}

func pathInt(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v < 0 {
		Fail(c, apperrors.ErrInvalidRequest.WithMessagef("invalid %s: %q", name, c.Param(name)))
		return 0, false
	}
	return v, true
}

func pagination(c *gin.Context) *repository.Pagination {
	page := &repository.Pagination{Page: 1, PageSize: 20}
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page.Page = p
	}
	if ps, err := strconv.Atoi(c.Query("page_size")); err == nil && ps > 0 && ps <= 100 {
		page.PageSize = ps
	}
	return page
}
