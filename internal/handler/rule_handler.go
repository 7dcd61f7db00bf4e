package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/repository"
	"github.com/cvagent/cvagent-rules/internal/service"
)

// RuleHandler 规则管理处理器
type RuleHandler struct {
	ruleService service.RuleService
}

// NewRuleHandler 创建规则管理处理器
func NewRuleHandler(ruleService service.RuleService) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
	}
}

// CreateRuleBody 创建规则请求体
type CreateRuleBody struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category" binding:"required"`
	Pattern       string `json:"pattern" binding:"required"`
	Suggestion    string `json:"suggestion"`
	Priority      int    `json:"priority" binding:"required"`
	IsActive      *bool  `json:"is_active"`
	TargetSection string `json:"target_section" binding:"required"`
	CreatedBy     string `json:"created_by"`
}

// Create 创建规则
// @Summary 创建优化规则
// @Tags 规则管理
// @Param body body CreateRuleBody true "规则定义"
// @Success 200 {object} Response{data=model.Rule}
// @Router /api/v1/rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	var body CreateRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), &service.CreateRuleRequest{
		Name:          body.Name,
		Description:   body.Description,
		Category:      model.RuleCategory(body.Category),
		Pattern:       body.Pattern,
		Suggestion:    body.Suggestion,
		Priority:      body.Priority,
		IsActive:      active,
		TargetSection: model.TargetSection(body.TargetSection),
		CreatedBy:     body.CreatedBy,
	})
	if err != nil {
		BizError(c, err)
		return
	}

	Success(c, rule)
}

// Get 获取规则详情
// @Summary 获取规则详情
// @Tags 规则管理
// @Param id path string true "规则ID"
// @Success 200 {object} Response{data=model.Rule}
// @Router /api/v1/rules/{id} [get]
func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.ruleService.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rule)
}

// List 获取规则列表
// @Summary 获取规则列表 (优先级降序)
// @Tags 规则管理
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} PagedResponse{data=[]model.Rule}
// @Router /api/v1/rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	page := parsePagination(c)

	rules, err := h.ruleService.ListRules(c.Request.Context(), page)
	if err != nil {
		BizError(c, err)
		return
	}

	SuccessPaged(c, rules, page.Page, page.PageSize, page.Total)
}

// ListActive 获取全部激活规则
// @Summary 获取全部激活规则
// @Tags 规则管理
// @Success 200 {object} Response{data=[]model.Rule}
// @Router /api/v1/rules/active [get]
func (h *RuleHandler) ListActive(c *gin.Context) {
	rules, err := h.ruleService.ListActiveRules(c.Request.Context())
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rules)
}

// ListByCategory 按类别获取激活规则
// @Summary 按类别获取激活规则
// @Tags 规则管理
// @Param category path string true "规则类别"
// @Success 200 {object} Response{data=[]model.Rule}
// @Router /api/v1/rules/category/{category} [get]
func (h *RuleHandler) ListByCategory(c *gin.Context) {
	category := model.RuleCategory(c.Param("category"))

	rules, err := h.ruleService.ListRulesByCategory(c.Request.Context(), category)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rules)
}

// Search 按关键字搜索规则
// @Summary 搜索规则 (大小写不敏感，匹配名称/描述/建议)
// @Tags 规则管理
// @Param keyword query string true "关键字"
// @Success 200 {object} Response{data=[]model.Rule}
// @Router /api/v1/rules/search [get]
func (h *RuleHandler) Search(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		BadRequest(c, "keyword is required")
		return
	}

	rules, err := h.ruleService.SearchRules(c.Request.Context(), keyword)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rules)
}

// ListCategories 获取类别集合
// @Summary 获取当前存在规则的类别集合
// @Tags 规则管理
// @Success 200 {object} Response{data=[]string}
// @Router /api/v1/rules/categories [get]
func (h *RuleHandler) ListCategories(c *gin.Context) {
	categories, err := h.ruleService.ListCategories(c.Request.Context())
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, categories)
}

// UpdateRuleBody 更新规则请求体
type UpdateRuleBody struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category" binding:"required"`
	Pattern       string `json:"pattern" binding:"required"`
	Suggestion    string `json:"suggestion"`
	Priority      int    `json:"priority" binding:"required"`
	IsActive      *bool  `json:"is_active"`
	TargetSection string `json:"target_section" binding:"required"`
	// ExpectedVersion 调用方读到的版本号，省略时以当前版本为准
	ExpectedVersion int    `json:"expected_version"`
	ChangeReason    string `json:"change_reason"`
	Operator        string `json:"operator"`
}

// Update 更新规则 (乐观并发)
// @Summary 更新规则
// @Tags 规则管理
// @Param id path string true "规则ID"
// @Param body body UpdateRuleBody true "规则定义"
// @Success 200 {object} Response{data=model.Rule}
// @Router /api/v1/rules/{id} [put]
func (h *RuleHandler) Update(c *gin.Context) {
	var body UpdateRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), &service.UpdateRuleRequest{
		RuleID:          c.Param("id"),
		Name:            body.Name,
		Description:     body.Description,
		Category:        model.RuleCategory(body.Category),
		Pattern:         body.Pattern,
		Suggestion:      body.Suggestion,
		Priority:        body.Priority,
		IsActive:        active,
		TargetSection:   model.TargetSection(body.TargetSection),
		ExpectedVersion: body.ExpectedVersion,
		ChangeReason:    body.ChangeReason,
		Operator:        body.Operator,
	})
	if err != nil {
		BizError(c, err)
		return
	}

	Success(c, rule)
}

// ToggleBody 状态切换请求体
type ToggleBody struct {
	IsActive *bool  `json:"is_active" binding:"required"`
	Operator string `json:"operator"`
}

// Toggle 切换规则激活状态
// @Summary 切换规则激活状态 (不递增版本)
// @Tags 规则管理
// @Param id path string true "规则ID"
// @Param body body ToggleBody true "目标状态"
// @Success 200 {object} Response{data=model.Rule}
// @Router /api/v1/rules/{id}/status [patch]
func (h *RuleHandler) Toggle(c *gin.Context) {
	var body ToggleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "is_active is required")
		return
	}

	rule, err := h.ruleService.ToggleRule(c.Request.Context(), c.Param("id"), *body.IsActive, body.Operator)
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, rule)
}

// Delete 删除规则
// @Summary 删除规则 (历史记录保留)
// @Tags 规则管理
// @Param id path string true "规则ID"
// @Success 200 {object} Response
// @Router /api/v1/rules/{id} [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	operator := c.Query("operator")

	if err := h.ruleService.DeleteRule(c.Request.Context(), c.Param("id"), operator); err != nil {
		BizError(c, err)
		return
	}
	SuccessWithMessage(c, "rule deleted", nil)
}

// Statistics 获取规则统计
// @Summary 获取规则统计
// @Tags 规则管理
// @Success 200 {object} Response{data=model.RuleStatistics}
// @Router /api/v1/rules/statistics [get]
func (h *RuleHandler) Statistics(c *gin.Context) {
	stats, err := h.ruleService.GetStatistics(c.Request.Context())
	if err != nil {
		BizError(c, err)
		return
	}
	Success(c, stats)
}

// parsePagination 解析分页查询参数
func parsePagination(c *gin.Context) *repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return &repository.Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}
