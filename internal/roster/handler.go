package roster

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
)

type Handler struct {
	store      *Store
	privileged func(role string) bool
	log        *logger.Logger
	now        func() time.Time
}

func RegisterRoutes(r gin.IRoutes, store *Store, privileged func(role string) bool, log *logger.Logger) {
	h := &Handler{store: store, privileged: privileged, log: log, now: time.Now}

	// GET /classes
	r.GET("/classes", h.ListClasses)
	// GET /classes/:classId/students
	// オフライン入力用にクライアントがキャッシュする
	r.GET("/classes/:classId/students", h.ListStudents)
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// ListClasses godoc
// @Summary   Classes visible to the caller
// @Tags      roster
// @Produce   json
// @Security  BearerAuth
// @Success   200  {object}  ClassesResponse
// @Router    /classes [get]
func (h *Handler) ListClasses(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	teacherID := actor.ID
	if h.privileged(actor.Role) {
		teacherID = ""
	}
	items, err := h.store.ListClasses(c.Request.Context(), teacherID)
	if err != nil {
		h.log.Error("list classes failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error"))
		return
	}
	c.JSON(http.StatusOK, ClassesResponse{Items: items})
}

// ListStudents godoc
// @Summary   Active students of a class
// @Tags      roster
// @Produce   json
// @Security  BearerAuth
// @Param     classId  path      string  true  "class id"
// @Success   200      {object}  StudentsResponse
// @Failure   403      {object}  errorDTO
// @Failure   404      {object}  errorDTO
// @Router    /classes/{classId}/students [get]
func (h *Handler) ListStudents(c *gin.Context) {
	ctx := c.Request.Context()
	actor, _ := auth.ActorFrom(c)
	classID := c.Param("classId")

	ok, err := h.store.ClassExists(ctx, classID)
	if err != nil {
		h.log.Error("class lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error"))
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "class not found"))
		return
	}
	if !h.privileged(actor.Role) {
		assigned, err := h.store.IsAssigned(ctx, actor.ID, classID)
		if err != nil {
			h.log.Error("assignment lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error"))
			return
		}
		if !assigned {
			c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "you are not assigned to this class"))
			return
		}
	}

	students, err := h.store.ListActiveStudents(ctx, classID)
	if err != nil {
		h.log.Error("list students failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error"))
		return
	}
	c.JSON(http.StatusOK, StudentsResponse{ClassID: classID, Students: students, CachedAt: h.now().UTC()})
}
