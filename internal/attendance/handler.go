package attendance

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type Handler struct{ svc *Service }

// RegisterRoutes: r には RequireAuth 済みのグループを渡す
func RegisterRoutes(r gin.IRoutes, svc *Service, privilegedRoles ...string) {
	h := &Handler{svc: svc}
	privileged := auth.RequireRole(privilegedRoles...)

	// GET /attendance/:classId/:date/:session
	r.GET("/attendance/:classId/:date/:session", h.GetState)
	// GET /attendance/:classId/:date/:session/audit
	r.GET("/attendance/:classId/:date/:session/audit", privileged, h.ListAudit)

	// GET /dashboard
	r.GET("/dashboard", h.GetDashboard)

	// POST /attendance/sync
	r.POST("/attendance/sync", h.Submit)
	// POST /attendance/edit
	r.POST("/attendance/edit", h.Edit)

	// 管理者のみ
	// POST /attendance/lock
	r.POST("/attendance/lock", privileged, h.Lock)
	// POST /attendance/unlock
	r.POST("/attendance/unlock", privileged, h.Unlock)
}

// ---------- handlers ----------

// Submit godoc
// @Summary      Submit attendance (idempotent)
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Idempotency-Key  header  string         false  "mirrors idempotencyKey"
// @Param        body               body    SubmitRequest  true   "attendance event"
// @Success      200  {object}  SubmitResponse
// @Failure      400  {object}  errorDTO
// @Failure      403  {object}  errorDTO
// @Failure      404  {object}  errorDTO
// @Router       /attendance/sync [post]
func (h *Handler) Submit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	if !headerMatches(c, req.IdempotencyKey) {
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Edit godoc
// @Summary      Edit attendance within the edit window
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Idempotency-Key  header  string       false  "mirrors idempotencyKey"
// @Param        body               body    EditRequest  true   "edit event"
// @Success      200  {object}  EditResponse
// @Failure      400  {object}  errorDTO
// @Failure      403  {object}  errorDTO
// @Failure      404  {object}  errorDTO
// @Router       /attendance/edit [post]
func (h *Handler) Edit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	if !headerMatches(c, req.IdempotencyKey) {
		return
	}

	res, err := h.svc.Edit(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// Lock godoc
// @Summary      Lock an attendance session
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      LockRequest  true  "session and reason"
// @Success      200   {object}  LockResponse
// @Failure      403   {object}  errorDTO
// @Failure      404   {object}  errorDTO
// @Failure      409   {object}  errorDTO
// @Router       /attendance/lock [post]
func (h *Handler) Lock(c *gin.Context) { h.transition(c, true) }

// Unlock godoc
// @Summary      Unlock an attendance session
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      LockRequest  true  "session and reason"
// @Success      200   {object}  LockResponse
// @Failure      403   {object}  errorDTO
// @Failure      404   {object}  errorDTO
// @Failure      409   {object}  errorDTO
// @Router       /attendance/unlock [post]
func (h *Handler) Unlock(c *gin.Context) { h.transition(c, false) }

func (h *Handler) transition(c *gin.Context, lock bool) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	var (
		res LockResponse
		err error
	)
	if lock {
		res, err = h.svc.Lock(c.Request.Context(), actor, req)
	} else {
		res, err = h.svc.Unlock(c.Request.Context(), actor, req)
	}
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetState godoc
// @Summary      Current session state with per-student records
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        classId  path      string  true  "class id"
// @Param        date     path      string  true  "YYYY-MM-DD"
// @Param        session  path      string  true  "MORNING or AFTERNOON"
// @Success      200      {object}  StateResponse
// @Failure      400      {object}  errorDTO
// @Failure      404      {object}  errorDTO
// @Router       /attendance/{classId}/{date}/{session} [get]
func (h *Handler) GetState(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.State(c.Request.Context(), actor, c.Param("classId"), c.Param("date"), SessionType(c.Param("session")))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDashboard godoc
// @Summary      Morning and afternoon status of the caller's classes
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        date  query     string  false  "YYYY-MM-DD (default today)"
// @Success      200   {object}  DashboardResponse
// @Failure      400   {object}  errorDTO
// @Router       /dashboard [get]
func (h *Handler) GetDashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.Dashboard(c.Request.Context(), actor, c.Query("date"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListAudit godoc
// @Summary      Audit trail of one session
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        classId  path      string  true  "class id"
// @Param        date     path      string  true  "YYYY-MM-DD"
// @Param        session  path      string  true  "MORNING or AFTERNOON"
// @Success      200      {object}  AuditListResponse
// @Failure      403      {object}  errorDTO
// @Router       /attendance/{classId}/{date}/{session}/audit [get]
func (h *Handler) ListAudit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	res, err := h.svc.Audit(c.Request.Context(), actor, c.Param("classId"), c.Param("date"), SessionType(c.Param("session")))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func (h *Handler) actor(c *gin.Context) (auth.Actor, bool) {
	a, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "missing actor"))
		return auth.Actor{}, false
	}
	return a, true
}

// headerMatches: ヘッダがあるならボディのキーと一致していること
func headerMatches(c *gin.Context, bodyKey string) bool {
	h := c.GetHeader(HeaderIdempotencyKey)
	if h == "" || h == bodyKey {
		return true
	}
	c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, HeaderIdempotencyKey+" does not match idempotencyKey"))
	return false
}
