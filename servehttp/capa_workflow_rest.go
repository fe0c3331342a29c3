package servehttp

import (
	"net/http"

	"foodsafe/bizerror"
	"foodsafe/domain/capa"
	"foodsafe/domain/flow"
	"foodsafe/misc"
	"foodsafe/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type StepActionBody struct {
	Action   flow.StepAction `json:"action" binding:"required"`
	Comments string          `json:"comments"`
}

func RegisterCapaWorkflowHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/capas", middleWares...)

	g.POST(":id/workflow", initiateWorkflowRestAPI)
	g.GET(":id/workflow", listWorkflowStepsRestAPI)
	g.GET(":id/progress", capaProgressRestAPI)
	g.POST(":id/workflow/steps/:stepId/actions", actOnStepRestAPI)
	g.POST(":id/workflow/steps/:stepId/reopen", reopenStepRestAPI)
}

func initiateWorkflowRestAPI(c *gin.Context) {
	id, err := parseIdParam(c, "id")
	if err != nil {
		return
	}

	steps, created, err := capa.InitiateWorkflowFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, steps)
}

func listWorkflowStepsRestAPI(c *gin.Context) {
	id, err := parseIdParam(c, "id")
	if err != nil {
		return
	}

	steps, err := capa.ListStepsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, steps)
}

func capaProgressRestAPI(c *gin.Context) {
	id, err := parseIdParam(c, "id")
	if err != nil {
		return
	}

	progress, err := capa.CapaProgressFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

func actOnStepRestAPI(c *gin.Context) {
	id, err := parseIdParam(c, "id")
	if err != nil {
		return
	}
	stepID, err := parseIdParam(c, "stepId")
	if err != nil {
		return
	}

	body := StepActionBody{}
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	result, err := capa.ActOnStepFunc(id, stepID, body.Action, body.Comments, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, result)
}

func reopenStepRestAPI(c *gin.Context) {
	id, err := parseIdParam(c, "id")
	if err != nil {
		return
	}
	stepID, err := parseIdParam(c, "stepId")
	if err != nil {
		return
	}

	steps, err := capa.ReopenStepFunc(id, stepID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, steps)
}

func parseIdParam(c *gin.Context, name string) (types.ID, error) {
	id, err := types.ParseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param(name) + "'"})
		return 0, err
	}
	return id, nil
}
