package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/group"
)

type groupApi struct {
	deps ServerDeps
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := groupApi{deps: deps}

	gg := g.Group("/groups", jwt, staffMiddleware())
	gg.POST("", api.create)
	gg.GET("", api.query)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/members", api.queryMembers)
	dg.PUT("/members", api.setMembers)
}

// Handlers

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	grp, err := api.deps.GrpSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *groupApi) query(ctx echo.Context) error {
	groups, err := api.deps.GrpSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	id, err := groupID(ctx)
	if err != nil {
		return err
	}
	grp, err := api.deps.GrpSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) update(ctx echo.Context) error {
	id, err := groupID(ctx)
	if err != nil {
		return err
	}
	var data group.UpdateGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	if err = api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	grp, err := api.deps.GrpSvc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) destroy(ctx echo.Context) error {
	id, err := groupID(ctx)
	if err != nil {
		return err
	}
	if err = api.deps.GrpSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) queryMembers(ctx echo.Context) error {
	id, err := groupID(ctx)
	if err != nil {
		return err
	}
	members, err := api.deps.GrpSvc.Members(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *groupApi) setMembers(ctx echo.Context) error {
	id, err := groupID(ctx)
	if err != nil {
		return err
	}
	var data SetMembersRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetMembersRequest")
	}
	if err = api.deps.GrpSvc.SetMembers(ctx.Request().Context(), id, data.UserIDs); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func groupID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

type SetMembersRequest struct {
	UserIDs []int `json:"user_ids"`
}
