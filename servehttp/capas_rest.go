package servehttp

import (
	"net/http"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/capa"
	"foodsafe/domain/state"
	"foodsafe/indices/search"
	"foodsafe/misc"
	"foodsafe/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var capaValidator = validator.New()

func RegisterCapasHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/capas", middleWares...)

	g.POST("", createCapaRestAPI)
	g.GET("", queryCapasRestAPI)
	g.GET(":id", detailCapaRestAPI)
	g.PUT(":id/status", updateCapaStatusRestAPI)

	t := r.Group("/v1/capa-transitions", middleWares...)
	t.GET("", queryCapaTransitionsRestAPI)

	o := r.Group("/v1/capa-overdue-sync", middleWares...)
	o.POST("", syncOverdueCapasRestAPI)

	q := r.Group("/v1/capa-search", middleWares...)
	q.GET("", searchCapasRestAPI)
}

func createCapaRestAPI(c *gin.Context) {
	creation := domain.CapaCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := capaValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := capa.CreateCapaFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, record)
}

func queryCapasRestAPI(c *gin.Context) {
	query := domain.CapaQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	records, err := capa.QueryCapasFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, records)
}

func detailCapaRestAPI(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	record, err := capa.DetailCapaFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, record)
}

func updateCapaStatusRestAPI(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	updating := domain.StatusUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := capa.UpdateStatusFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, record)
}

func searchCapasRestAPI(c *gin.Context) {
	query := domain.CapaQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	records, err := search.SearchCapasFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, records)
}

func queryCapaTransitionsRestAPI(c *gin.Context) {
	current := state.Status(c.Query("status"))
	if current == "" {
		panic(&bizerror.ErrBadParam{})
	}
	c.JSON(http.StatusOK, state.ComputeLegalTransitions(current))
}

func syncOverdueCapasRestAPI(c *gin.Context) {
	count, err := capa.SyncOverdueCapasFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}
