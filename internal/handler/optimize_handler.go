package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/service"
)

// OptimizeHandler 规则评估处理器
type OptimizeHandler struct {
	engine service.EngineService
}

// NewOptimizeHandler 创建规则评估处理器
func NewOptimizeHandler(engine service.EngineService) *OptimizeHandler {
	return &OptimizeHandler{
		engine: engine,
	}
}

// ApplyRuleBody 单规则评估请求体
type ApplyRuleBody struct {
	RuleID string `json:"rule_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// ApplyRule 将单条规则应用于文本
// @Summary 单规则评估 (全文匹配)
// @Tags 规则评估
// @Param body body ApplyRuleBody true "评估请求"
// @Success 200 {object} Response{data=model.OptimizationResult}
// @Router /api/v1/optimize/rule [post]
func (h *OptimizeHandler) ApplyRule(c *gin.Context) {
	var body ApplyRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "rule_id and text are required")
		return
	}

	result, err := h.engine.ApplyRule(c.Request.Context(), body.RuleID, body.Text)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, result)
}

// ApplyBody 区域评估请求体
type ApplyBody struct {
	Text string `json:"text" binding:"required"`
	// TargetSection 作用区域，省略时为 ALL
	TargetSection string `json:"target_section"`
}

// Apply 将区域内全部激活规则应用于文本
// @Summary 区域评估 (优先级降序返回)
// @Tags 规则评估
// @Param body body ApplyBody true "评估请求"
// @Success 200 {object} Response{data=[]model.OptimizationResult}
// @Router /api/v1/optimize/apply [post]
func (h *OptimizeHandler) Apply(c *gin.Context) {
	var body ApplyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "text is required")
		return
	}

	section := model.TargetSection(body.TargetSection)
	if body.TargetSection == "" {
		section = model.SectionAll
	}

	results, err := h.engine.ApplyAllRules(c.Request.Context(), body.Text, section)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, results)
}

// BatchApplyBody 批量评估请求体
type BatchApplyBody struct {
	// Text 整体文本，按 ALL 作用域规则评估
	Text string `json:"text"`
	// Sections 预切分的区域文本，key 为 SUMMARY/SKILLS/EXPERIENCE/EDUCATION
	Sections map[string]string `json:"sections"`
}

// BatchApply 批量评估
// @Summary 批量评估并聚合评分
// @Tags 规则评估
// @Param body body BatchApplyBody true "评估请求"
// @Success 200 {object} Response{data=model.BatchOptimizationResult}
// @Router /api/v1/optimize/batch [post]
func (h *OptimizeHandler) BatchApply(c *gin.Context) {
	var body BatchApplyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	sections := make(map[model.TargetSection]string, len(body.Sections))
	for k, v := range body.Sections {
		sections[model.TargetSection(k)] = v
	}

	result, err := h.engine.BatchApplyRules(c.Request.Context(), body.Text, sections)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, result)
}
