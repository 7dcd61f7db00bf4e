package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cvagent/cvagent-rules/internal/service"
)

// VersionHandler 规则版本历史处理器
type VersionHandler struct {
	versionService service.VersionService
}

// NewVersionHandler 创建版本历史处理器
func NewVersionHandler(versionService service.VersionService) *VersionHandler {
	return &VersionHandler{
		versionService: versionService,
	}
}

// List 获取规则的历史版本列表
// @Summary 获取规则的历史版本 (版本号降序)
// @Tags 版本历史
// @Param id path string true "规则ID"
// @Success 200 {object} Response{data=[]model.RuleVersion}
// @Router /api/v1/rules/{id}/versions [get]
func (h *VersionHandler) List(c *gin.Context) {
	versions, err := h.versionService.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, versions)
}

// Get 获取规则的指定历史版本
// @Summary 获取指定历史版本
// @Tags 版本历史
// @Param id path string true "规则ID"
// @Param version path int true "版本号"
// @Success 200 {object} Response{data=model.RuleVersion}
// @Router /api/v1/rules/{id}/versions/{version} [get]
func (h *VersionHandler) Get(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		BadRequest(c, "invalid version number")
		return
	}

	v, err := h.versionService.GetVersion(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, v)
}

// RestoreBody 版本恢复请求体
type RestoreBody struct {
	Operator string `json:"operator"`
}

// Restore 将规则恢复到指定历史版本
// @Summary 恢复历史版本 (版本号继续递增)
// @Tags 版本历史
// @Param id path string true "规则ID"
// @Param version path int true "版本号"
// @Success 200 {object} Response{data=model.Rule}
// @Router /api/v1/rules/{id}/versions/{version}/restore [post]
func (h *VersionHandler) Restore(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		BadRequest(c, "invalid version number")
		return
	}

	var body RestoreBody
	_ = c.ShouldBindJSON(&body)

	rule, err := h.versionService.RestoreVersion(c.Request.Context(), c.Param("id"), version, body.Operator)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rule)
}

// Compare 比较两个历史版本
// @Summary 比较两个历史版本
// @Tags 版本历史
// @Param id path string true "规则ID"
// @Param from query int true "起始版本"
// @Param to query int true "目标版本"
// @Success 200 {object} Response{data=model.VersionComparison}
// @Router /api/v1/rules/{id}/versions/compare [get]
func (h *VersionHandler) Compare(c *gin.Context) {
	from, err := strconv.Atoi(c.Query("from"))
	if err != nil || from < 1 {
		BadRequest(c, "invalid from version")
		return
	}
	to, err := strconv.Atoi(c.Query("to"))
	if err != nil || to < 1 {
		BadRequest(c, "invalid to version")
		return
	}

	cmp, err := h.versionService.CompareVersions(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, cmp)
}

// Statistics 获取规则的版本统计
// @Summary 获取版本统计
// @Tags 版本历史
// @Param id path string true "规则ID"
// @Success 200 {object} Response{data=model.VersionStatistics}
// @Router /api/v1/rules/{id}/versions/statistics [get]
func (h *VersionHandler) Statistics(c *gin.Context) {
	stats, err := h.versionService.GetVersionStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, stats)
}
